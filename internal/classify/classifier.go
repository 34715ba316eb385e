package classify

import (
	"strings"

	"github.com/temirov/shellbridge/internal/bridge"
)

const (
	verdictSuccessLabelConstant             = "success"
	verdictSoftFailLabelConstant            = "soft-fail"
	verdictHardFailLabelConstant            = "hard-fail"
	failureKindNoneLabelConstant            = "none"
	failureKindCommunicationLabelConstant   = "communication-failure"
	failureKindTimeoutLabelConstant         = "protocol-timeout"
	failureKindExternalCommandLabelConstant = "external-command-failure"
	failureKindAmbiguousReplyLabelConstant  = "ambiguous-reply"
	timeoutPatternConstant                  = "timeout"
	securityExceptionPatternConstant        = "securityexception"
	permissionDeniedPatternConstant         = "permission denied"
	communicationFailurePatternConstant     = "communication failure"
	allowExternalAppsPhraseConstant         = "allow-external-apps"
	externalAppPhraseConstant               = "external app"
	emptyReplyPhraseConstant                = "reply payload empty"
	combinedTextSeparatorConstant           = "\n"
)

// Verdict is the tagged classification of one outcome.
type Verdict int

// Verdict values.
const (
	Success Verdict = iota
	SoftFail
	HardFail
)

// String returns the human-readable verdict label.
func (verdict Verdict) String() string {
	switch verdict {
	case Success:
		return verdictSuccessLabelConstant
	case SoftFail:
		return verdictSoftFailLabelConstant
	default:
		return verdictHardFailLabelConstant
	}
}

// FailureKind names the error taxonomy bucket an outcome belongs to.
type FailureKind int

// FailureKind values.
const (
	FailureNone FailureKind = iota
	FailureCommunication
	FailureProtocolTimeout
	FailureExternalCommand
	FailureAmbiguousReply
)

// String returns the human-readable failure kind label.
func (kind FailureKind) String() string {
	switch kind {
	case FailureCommunication:
		return failureKindCommunicationLabelConstant
	case FailureProtocolTimeout:
		return failureKindTimeoutLabelConstant
	case FailureExternalCommand:
		return failureKindExternalCommandLabelConstant
	case FailureAmbiguousReply:
		return failureKindAmbiguousReplyLabelConstant
	default:
		return failureKindNoneLabelConstant
	}
}

// Configuration lists the phrases the classifier looks for.
type Configuration struct {
	HardFailurePatterns  []string `mapstructure:"hard_failure_patterns"`
	BlockedConfigPhrases []string `mapstructure:"blocked_config_phrases"`
}

// DefaultConfiguration returns the phrases observed in helper replies and bridge failures.
func DefaultConfiguration() Configuration {
	return Configuration{
		HardFailurePatterns: []string{
			timeoutPatternConstant,
			securityExceptionPatternConstant,
			permissionDeniedPatternConstant,
			communicationFailurePatternConstant,
		},
		BlockedConfigPhrases: []string{
			allowExternalAppsPhraseConstant,
			externalAppPhraseConstant,
			emptyReplyPhraseConstant,
		},
	}
}

// Classifier evaluates outcomes against the configured patterns.
type Classifier struct {
	hardFailurePatterns  []string
	blockedConfigPhrases []string
}

// NewClassifier builds a classifier. Empty pattern lists fall back to the defaults.
func NewClassifier(configuration Configuration) *Classifier {
	defaults := DefaultConfiguration()
	hardFailurePatterns := lowercaseAll(configuration.HardFailurePatterns)
	if len(hardFailurePatterns) == 0 {
		hardFailurePatterns = lowercaseAll(defaults.HardFailurePatterns)
	}
	blockedConfigPhrases := lowercaseAll(configuration.BlockedConfigPhrases)
	if len(blockedConfigPhrases) == 0 {
		blockedConfigPhrases = lowercaseAll(defaults.BlockedConfigPhrases)
	}
	return &Classifier{hardFailurePatterns: hardFailurePatterns, blockedConfigPhrases: blockedConfigPhrases}
}

// Classify reports the verdict for outcome produced by a step with the given criticality.
func (classifier *Classifier) Classify(outcome bridge.CommandOutcome, critical bool) Verdict {
	if classifier.MatchesHardFailurePattern(outcome) {
		return HardFail
	}
	if outcome.Succeeded {
		return Success
	}
	if outcome.MinimalPayload && !outcome.ExitCode.Present {
		return SoftFail
	}
	if !critical {
		return SoftFail
	}
	if outcome.ExitCode.Present && outcome.ExitCode.Value > 0 {
		return HardFail
	}
	return SoftFail
}

// MatchesHardFailurePattern reports whether the error message names a timeout or transport failure.
func (classifier *Classifier) MatchesHardFailurePattern(outcome bridge.CommandOutcome) bool {
	return containsAny(strings.ToLower(outcome.ErrorMessage), classifier.hardFailurePatterns)
}

// LooksLikeBlockedByConfig reports whether outcome suggests the helper's external command gate is off.
func (classifier *Classifier) LooksLikeBlockedByConfig(outcome bridge.CommandOutcome) bool {
	combinedText := strings.ToLower(strings.Join([]string{outcome.ErrorMessage, outcome.StandardError, outcome.StandardOutput}, combinedTextSeparatorConstant))
	if containsAny(combinedText, classifier.blockedConfigPhrases) {
		return true
	}
	return !outcome.ExitCode.Present && !outcome.ErrorCode.Present && outcome.MinimalPayload
}

// FailureKind maps a non-successful outcome onto the error taxonomy.
func (classifier *Classifier) FailureKind(outcome bridge.CommandOutcome) FailureKind {
	loweredMessage := strings.ToLower(outcome.ErrorMessage)
	switch {
	case strings.Contains(loweredMessage, timeoutPatternConstant):
		return FailureProtocolTimeout
	case classifier.MatchesHardFailurePattern(outcome):
		return FailureCommunication
	case outcome.Succeeded && outcome.AcknowledgedOnly:
		return FailureAmbiguousReply
	case outcome.Succeeded:
		return FailureNone
	case outcome.ExitCode.Present && outcome.ExitCode.Value != 0:
		return FailureExternalCommand
	case !outcome.ExitCode.Present:
		return FailureAmbiguousReply
	default:
		return FailureExternalCommand
	}
}

func containsAny(text string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}

func lowercaseAll(rawValues []string) []string {
	loweredValues := make([]string, 0, len(rawValues))
	for _, rawValue := range rawValues {
		trimmedValue := strings.ToLower(strings.TrimSpace(rawValue))
		if len(trimmedValue) == 0 {
			continue
		}
		loweredValues = append(loweredValues, trimmedValue)
	}
	return loweredValues
}
