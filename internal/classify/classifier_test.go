package classify_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/shellbridge/internal/bridge"
	"github.com/temirov/shellbridge/internal/classify"
)

func TestClassifierClassify(testInstance *testing.T) {
	classifier := classify.NewClassifier(classify.DefaultConfiguration())

	testCases := []struct {
		name     string
		outcome  bridge.CommandOutcome
		critical bool
		expected classify.Verdict
	}{
		{
			name:     "timeout_is_hard_regardless_of_fields",
			outcome:  bridge.CommandOutcome{ErrorMessage: "Timeout after 30s", Succeeded: true, ExitCode: bridge.SomeInt(0)},
			critical: false,
			expected: classify.HardFail,
		},
		{
			name:     "security_exception_is_hard",
			outcome:  bridge.CommandOutcome{ErrorMessage: "SecurityException: not allowed"},
			critical: false,
			expected: classify.HardFail,
		},
		{
			name:     "communication_failure_is_hard",
			outcome:  bridge.CommandOutcome{ErrorMessage: "communication failure: connection lost"},
			critical: false,
			expected: classify.HardFail,
		},
		{
			name:     "success",
			outcome:  bridge.CommandOutcome{Succeeded: true, ExitCode: bridge.SomeInt(0)},
			critical: true,
			expected: classify.Success,
		},
		{
			name:     "minimal_payload_without_exit_is_soft",
			outcome:  bridge.CommandOutcome{MinimalPayload: true, ErrorCode: bridge.SomeInt(1)},
			critical: true,
			expected: classify.SoftFail,
		},
		{
			name:     "non_critical_failure_is_soft",
			outcome:  bridge.CommandOutcome{ExitCode: bridge.SomeInt(127)},
			critical: false,
			expected: classify.SoftFail,
		},
		{
			name:     "critical_positive_exit_is_hard",
			outcome:  bridge.CommandOutcome{ExitCode: bridge.SomeInt(1)},
			critical: true,
			expected: classify.HardFail,
		},
		{
			name:     "critical_without_exit_is_soft",
			outcome:  bridge.CommandOutcome{ErrorMessage: "reply keys: note(string)=x"},
			critical: true,
			expected: classify.SoftFail,
		},
		{
			name:     "critical_negative_exit_is_soft",
			outcome:  bridge.CommandOutcome{ExitCode: bridge.SomeInt(-1)},
			critical: true,
			expected: classify.SoftFail,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, classifier.Classify(testCase.outcome, testCase.critical))
		})
	}
}

func TestClassifierLooksLikeBlockedByConfig(testInstance *testing.T) {
	classifier := classify.NewClassifier(classify.DefaultConfiguration())

	testCases := []struct {
		name     string
		outcome  bridge.CommandOutcome
		expected bool
	}{
		{
			name:     "phrase_in_stderr",
			outcome:  bridge.CommandOutcome{StandardError: "Set Allow-External-Apps=true"},
			expected: true,
		},
		{
			name:     "empty_reply_message",
			outcome:  bridge.CommandOutcome{ErrorMessage: "reply payload empty (external command permission may be disabled)"},
			expected: true,
		},
		{
			name:     "minimal_payload_without_codes",
			outcome:  bridge.CommandOutcome{MinimalPayload: true},
			expected: true,
		},
		{
			name:     "minimal_payload_with_exit_code",
			outcome:  bridge.CommandOutcome{MinimalPayload: true, ExitCode: bridge.SomeInt(1)},
			expected: false,
		},
		{
			name:     "ordinary_failure",
			outcome:  bridge.CommandOutcome{ExitCode: bridge.SomeInt(2), StandardError: "no such file"},
			expected: false,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, classifier.LooksLikeBlockedByConfig(testCase.outcome))
		})
	}
}

func TestClassifierFailureKind(testInstance *testing.T) {
	classifier := classify.NewClassifier(classify.DefaultConfiguration())

	testCases := []struct {
		name     string
		outcome  bridge.CommandOutcome
		expected classify.FailureKind
	}{
		{name: "timeout", outcome: bridge.CommandOutcome{ErrorMessage: "Timeout after 1s"}, expected: classify.FailureProtocolTimeout},
		{name: "permission", outcome: bridge.CommandOutcome{ErrorMessage: "permission denied: dial"}, expected: classify.FailureCommunication},
		{name: "exit", outcome: bridge.CommandOutcome{ExitCode: bridge.SomeInt(3)}, expected: classify.FailureExternalCommand},
		{name: "acknowledged", outcome: bridge.CommandOutcome{Succeeded: true, AcknowledgedOnly: true}, expected: classify.FailureAmbiguousReply},
		{name: "clean", outcome: bridge.CommandOutcome{Succeeded: true, ExitCode: bridge.SomeInt(0)}, expected: classify.FailureNone},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, classifier.FailureKind(testCase.outcome))
		})
	}
}

func TestClassifierUsesConfiguredPatterns(testInstance *testing.T) {
	classifier := classify.NewClassifier(classify.Configuration{HardFailurePatterns: []string{"Fatal"}})

	require.Equal(testInstance, classify.HardFail, classifier.Classify(bridge.CommandOutcome{ErrorMessage: "fatal: broken"}, false))
	require.Equal(testInstance, classify.SoftFail, classifier.Classify(bridge.CommandOutcome{ErrorMessage: "Timeout after 1s"}, false))
}

func TestVerdictString(testInstance *testing.T) {
	require.Equal(testInstance, "success", classify.Success.String())
	require.Equal(testInstance, "soft-fail", classify.SoftFail.String())
	require.Equal(testInstance, "hard-fail", classify.HardFail.String())
}
