package repair

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultPrimaryIdentityConstant     = "shellhelper"
	defaultNightlyIdentityConstant     = "shellhelper-nightly"
	defaultMinimumVersionConstant      = "0.109"
	defaultOutputTailLinesConstant     = 20
	defaultProbeTimeoutConstant        = 30 * time.Second
	defaultBridgeProbeMarkerConstant   = "__SHELLBRIDGE_BRIDGE_OK__"
	defaultConfigProbeMarkerConstant   = "__SHELLBRIDGE_ALLOW_EXTERNAL__"
	bridgeProbeCommandPrefixConstant   = "echo "
	configProbeCommandTemplateConstant = `if [ -f ~/.shellhelper/shellhelper.properties ] && grep -Eiq '^[[:space:]]*allow-external-apps[[:space:]]*=[[:space:]]*true([[:space:]]|$)' ~/.shellhelper/shellhelper.properties; then
  echo "%[1]s=true"
else
  echo "%[1]s=false"
fi`
)

// Configuration controls preconditions, probes, and the setup script.
type Configuration struct {
	ProcessIdentities  []string      `mapstructure:"process_identities"`
	MinimumVersion     string        `mapstructure:"minimum_version"`
	RequiredPermission string        `mapstructure:"required_permission"`
	OutputTailLines    int           `mapstructure:"output_tail_lines"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	BridgeProbeMarker  string        `mapstructure:"bridge_probe_marker"`
	ConfigProbeMarker  string        `mapstructure:"config_probe_marker"`
	ScriptPath         string        `mapstructure:"script"`
	Steps              []SetupStep   `mapstructure:"steps"`
}

// DefaultConfiguration returns the configuration used when no overrides are supplied.
func DefaultConfiguration() Configuration {
	return Configuration{
		ProcessIdentities: []string{defaultPrimaryIdentityConstant, defaultNightlyIdentityConstant},
		MinimumVersion:    defaultMinimumVersionConstant,
		OutputTailLines:   defaultOutputTailLinesConstant,
		ProbeTimeout:      defaultProbeTimeoutConstant,
		BridgeProbeMarker: defaultBridgeProbeMarkerConstant,
		ConfigProbeMarker: defaultConfigProbeMarkerConstant,
		Steps:             DefaultSetupSteps(),
	}
}

// Sanitize fills blank fields with defaults and trims identities.
func (configuration Configuration) Sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration

	trimmedIdentities := make([]string, 0, len(sanitized.ProcessIdentities))
	for _, identity := range sanitized.ProcessIdentities {
		trimmedIdentity := strings.TrimSpace(identity)
		if len(trimmedIdentity) > 0 {
			trimmedIdentities = append(trimmedIdentities, trimmedIdentity)
		}
	}
	if len(trimmedIdentities) == 0 {
		trimmedIdentities = defaults.ProcessIdentities
	}
	sanitized.ProcessIdentities = trimmedIdentities

	sanitized.MinimumVersion = strings.TrimSpace(sanitized.MinimumVersion)
	sanitized.RequiredPermission = strings.TrimSpace(sanitized.RequiredPermission)
	sanitized.ScriptPath = strings.TrimSpace(sanitized.ScriptPath)
	if sanitized.OutputTailLines <= 0 {
		sanitized.OutputTailLines = defaults.OutputTailLines
	}
	if sanitized.ProbeTimeout <= 0 {
		sanitized.ProbeTimeout = defaults.ProbeTimeout
	}
	if len(strings.TrimSpace(sanitized.BridgeProbeMarker)) == 0 {
		sanitized.BridgeProbeMarker = defaults.BridgeProbeMarker
	}
	if len(strings.TrimSpace(sanitized.ConfigProbeMarker)) == 0 {
		sanitized.ConfigProbeMarker = defaults.ConfigProbeMarker
	}
	if len(sanitized.Steps) == 0 {
		sanitized.Steps = defaults.Steps
	}
	sanitized.Steps = append([]SetupStep{}, sanitized.Steps...)
	return sanitized
}

// BridgeProbeCommand returns the echo command used to validate the bridge.
func (configuration Configuration) BridgeProbeCommand() string {
	return bridgeProbeCommandPrefixConstant + configuration.BridgeProbeMarker
}

// ConfigProbeCommand returns the read-only command reporting whether the helper accepts external commands.
func (configuration Configuration) ConfigProbeCommand() string {
	return fmt.Sprintf(configProbeCommandTemplateConstant, configuration.ConfigProbeMarker)
}
