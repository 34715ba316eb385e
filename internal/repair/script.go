package repair

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	scriptStepsFieldNameConstant           = "steps"
	scriptPathRequiredMessageConstant      = "setup script path must be provided"
	scriptEmptyStepsMessageConstant        = "setup script must define at least one step"
	scriptStepCommandMissingTemplate       = "setup script step %d missing command"
	scriptStepNegativeTimeoutTemplate      = "setup script step %d has a negative timeout"
	scriptLoadErrorTemplateConstant        = "failed to load setup script: %w"
	scriptParseErrorTemplateConstant       = "failed to parse setup script: %w"
	scriptDecodeErrorTemplateConstant      = "failed to decode setup script: %w"
	scriptDecoderErrorTemplateConstant     = "failed to build setup script decoder: %w"
	scriptSecondsConversionTemplateMessage = "invalid timeout %v: %w"
	scriptListSeparatorConstant            = ","
)

//go:embed default_script.yaml
var defaultScriptContent []byte

var durationType = reflect.TypeOf(time.Duration(0))

// SetupStep is one shell command executed during the setup phase.
type SetupStep struct {
	Command  string        `mapstructure:"command" yaml:"command"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Critical bool          `mapstructure:"critical" yaml:"critical"`
}

type scriptDocument struct {
	Steps []SetupStep `mapstructure:"steps"`
}

// DefaultSetupSteps returns the built-in setup script.
func DefaultSetupSteps() []SetupStep {
	steps, parseError := ParseScript(defaultScriptContent)
	if parseError != nil {
		panic(parseError)
	}
	return steps
}

// LoadScript reads a YAML setup script from disk.
func LoadScript(filePath string) ([]SetupStep, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return nil, errors.New(scriptPathRequiredMessageConstant)
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return nil, fmt.Errorf(scriptLoadErrorTemplateConstant, readError)
	}
	return ParseScript(contentBytes)
}

// ParseScript decodes a YAML setup script. Timeouts accept duration strings ("90s") or whole seconds (90).
func ParseScript(content []byte) ([]SetupStep, error) {
	var rawContent any
	if unmarshalError := yaml.Unmarshal(content, &rawContent); unmarshalError != nil {
		return nil, fmt.Errorf(scriptParseErrorTemplateConstant, unmarshalError)
	}

	// A bare list of steps is accepted as well as a "steps" mapping.
	rawDocument := rawContent
	if rawSteps, isList := rawContent.([]any); isList {
		rawDocument = map[string]any{scriptStepsFieldNameConstant: rawSteps}
	}

	var document scriptDocument
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DecodeHook(),
		Result:     &document,
	})
	if decoderError != nil {
		return nil, fmt.Errorf(scriptDecoderErrorTemplateConstant, decoderError)
	}
	if decodeError := decoder.Decode(rawDocument); decodeError != nil {
		return nil, fmt.Errorf(scriptDecodeErrorTemplateConstant, decodeError)
	}

	return validateSteps(document.Steps)
}

// DecodeHook converts duration strings, whole seconds, and comma-separated lists into typed fields.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		secondsToDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(scriptListSeparatorConstant),
	)
}

func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(sourceType reflect.Type, targetType reflect.Type, data any) (any, error) {
		if targetType != durationType || sourceType == durationType {
			return data, nil
		}
		switch sourceType.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			seconds, conversionError := cast.ToFloat64E(data)
			if conversionError != nil {
				return nil, fmt.Errorf(scriptSecondsConversionTemplateMessage, data, conversionError)
			}
			return time.Duration(seconds * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

func validateSteps(steps []SetupStep) ([]SetupStep, error) {
	if len(steps) == 0 {
		return nil, errors.New(scriptEmptyStepsMessageConstant)
	}
	validatedSteps := make([]SetupStep, 0, len(steps))
	for stepIndex, step := range steps {
		step.Command = strings.TrimSpace(step.Command)
		if len(step.Command) == 0 {
			return nil, fmt.Errorf(scriptStepCommandMissingTemplate, stepIndex+1)
		}
		if step.Timeout < 0 {
			return nil, fmt.Errorf(scriptStepNegativeTimeoutTemplate, stepIndex+1)
		}
		validatedSteps = append(validatedSteps, step)
	}
	return validatedSteps, nil
}
