package repair_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/shellbridge/internal/repair"
)

func TestParseScript(testInstance *testing.T) {
	testCases := []struct {
		name          string
		content       string
		expectedSteps []repair.SetupStep
		expectError   bool
	}{
		{
			name: "duration_strings_and_seconds",
			content: `steps:
  - command: "pkg update -y"
    timeout: 15m
    critical: true
  - command: "python --version"
    timeout: 30
`,
			expectedSteps: []repair.SetupStep{
				{Command: "pkg update -y", Timeout: 15 * time.Minute, Critical: true},
				{Command: "python --version", Timeout: 30 * time.Second},
			},
		},
		{
			name: "bare_step_list",
			content: `- command: "  echo hi  "
  critical: true
`,
			expectedSteps: []repair.SetupStep{{Command: "echo hi", Critical: true}},
		},
		{
			name:        "missing_command",
			content:     "steps:\n  - timeout: 10s\n",
			expectError: true,
		},
		{
			name:        "no_steps",
			content:     "steps: []\n",
			expectError: true,
		},
		{
			name:        "invalid_duration",
			content:     "steps:\n  - command: ls\n    timeout: soon\n",
			expectError: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			steps, parseError := repair.ParseScript([]byte(testCase.content))
			if testCase.expectError {
				require.Error(testInstance, parseError)
				return
			}
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectedSteps, steps)
		})
	}
}

func TestLoadScriptReadsFile(testInstance *testing.T) {
	scriptPath := filepath.Join(testInstance.TempDir(), "setup.yaml")
	require.NoError(testInstance, os.WriteFile(scriptPath, []byte("steps:\n  - command: uname -a\n    timeout: 5s\n"), 0o600))

	steps, loadError := repair.LoadScript(scriptPath)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, []repair.SetupStep{{Command: "uname -a", Timeout: 5 * time.Second}}, steps)

	_, missingError := repair.LoadScript(filepath.Join(testInstance.TempDir(), "absent.yaml"))
	require.Error(testInstance, missingError)

	_, blankError := repair.LoadScript("  ")
	require.Error(testInstance, blankError)
}

func TestDefaultSetupSteps(testInstance *testing.T) {
	steps := repair.DefaultSetupSteps()
	require.Len(testInstance, steps, 7)

	criticalSteps := 0
	for _, step := range steps {
		if step.Critical {
			criticalSteps++
		}
	}
	require.Equal(testInstance, 4, criticalSteps)
	require.Equal(testInstance, "pkg update -y", steps[1].Command)
	require.Equal(testInstance, time.Hour, steps[3].Timeout)
	require.False(testInstance, steps[6].Critical)
}

func TestConfigurationSanitize(testInstance *testing.T) {
	sanitized := repair.Configuration{ProcessIdentities: []string{"  ", " custom-helper "}}.Sanitize()

	require.Equal(testInstance, []string{"custom-helper"}, sanitized.ProcessIdentities)
	require.Equal(testInstance, 20, sanitized.OutputTailLines)
	require.Equal(testInstance, 30*time.Second, sanitized.ProbeTimeout)
	require.Equal(testInstance, "echo __SHELLBRIDGE_BRIDGE_OK__", sanitized.BridgeProbeCommand())
	require.Contains(testInstance, sanitized.ConfigProbeCommand(), `echo "__SHELLBRIDGE_ALLOW_EXTERNAL__=true"`)
	require.Len(testInstance, sanitized.Steps, 7)
}

func TestIsVersionAtLeast(testInstance *testing.T) {
	testCases := []struct {
		name     string
		version  string
		minimum  string
		expected bool
	}{
		{name: "newer_minor", version: "0.118.0", minimum: "0.109", expected: true},
		{name: "equal", version: "0.109", minimum: "0.109", expected: true},
		{name: "older_minor", version: "0.100", minimum: "0.109", expected: false},
		{name: "newer_major", version: "1.0", minimum: "0.109", expected: true},
		{name: "prefixed", version: "v0.101-beta", minimum: "0.109", expected: false},
		{name: "missing_minor", version: "0", minimum: "0.109", expected: false},
		{name: "blank_version", version: "", minimum: "0.109", expected: true},
		{name: "non_numeric_version", version: "nightly", minimum: "0.109", expected: true},
		{name: "blank_minimum", version: "0.1", minimum: "", expected: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, repair.IsVersionAtLeast(testCase.version, testCase.minimum))
		})
	}
}

func TestStateString(testInstance *testing.T) {
	require.Equal(testInstance, "setting-up", repair.StateSettingUp.String())
	require.True(testInstance, repair.StateProbing.Active())
	require.True(testInstance, repair.StateFailed.Terminal())
	require.False(testInstance, repair.StateIdle.Active())
}
