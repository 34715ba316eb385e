package repair

import (
	"regexp"
	"strconv"
)

var versionComponentPattern = regexp.MustCompile(`\d+`)

// IsVersionAtLeast compares the numeric components of version against minimum.
// Blank or non-numeric versions pass, as does a blank minimum.
func IsVersionAtLeast(version string, minimum string) bool {
	actualComponents := parseVersionComponents(version)
	minimumComponents := parseVersionComponents(minimum)
	if len(actualComponents) == 0 || len(minimumComponents) == 0 {
		return true
	}

	for componentIndex, minimumComponent := range minimumComponents {
		versionComponent := 0
		if componentIndex < len(actualComponents) {
			versionComponent = actualComponents[componentIndex]
		}
		if versionComponent != minimumComponent {
			return versionComponent > minimumComponent
		}
	}
	return true
}

func parseVersionComponents(version string) []int {
	matches := versionComponentPattern.FindAllString(version, -1)
	components := make([]int, 0, len(matches))
	for _, match := range matches {
		component, conversionError := strconv.Atoi(match)
		if conversionError != nil {
			return nil
		}
		components = append(components, component)
	}
	return components
}
