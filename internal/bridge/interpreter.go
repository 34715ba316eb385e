package bridge

import (
	"slices"
	"strings"

	"github.com/temirov/shellbridge/internal/payload"
)

// DefaultAcknowledgementOkValue is the acknowledgement code helpers report for an accepted request.
const DefaultAcknowledgementOkValue = -1

const (
	emptyReplyMessageConstant      = "reply payload empty (external command permission may be disabled)"
	replyKeysMessagePrefixConstant = "reply keys: "
	genericResultKeyConstant       = "result"
	topLevelExitCodeKeyConstant    = "exit_code"
	topLevelResultCodeKeyConstant  = "result_code"
	topLevelErrorCodeKeyConstant   = "err"
	topLevelErrorKeyConstant       = "error"
)

var (
	standardOutputAliases = []string{"STDOUT", "RESULT_STDOUT", "stdout"}
	standardErrorAliases  = []string{"STDERR", "RESULT_STDERR", "stderr"}
	exitCodeAliases       = []string{"EXIT_CODE", "EXITCODE", "RESULT_EXIT_CODE", "exit_code"}
	errorCodeAliases      = []string{"_ERR", "ERR", "ERR_CODE", "ERROR_CODE", "RESULT_ERR", "err"}
	errorMessageAliases   = []string{"ERRMSG", "ERR_MSG", "ERROR_MESSAGE", "errmsg"}
	outputFieldAliases    = slices.Concat(standardOutputAliases, standardErrorAliases, errorMessageAliases)
)

// ReplyInterpreter converts raw helper replies into command outcomes.
type ReplyInterpreter struct {
	resolver               *payload.KeyResolver
	acknowledgementOkValue int
	strictRescue           bool
}

// NewReplyInterpreter builds an interpreter. A nil resolver uses the default heuristics.
// When strictRescue is set, acknowledgement-only replies count as success only when the
// reply carries the acknowledgement-ok code or nothing beyond an acknowledgement field.
func NewReplyInterpreter(resolver *payload.KeyResolver, acknowledgementOkValue int, strictRescue bool) *ReplyInterpreter {
	if resolver == nil {
		resolver = payload.NewKeyResolver(payload.DefaultResolverConfiguration())
	}
	return &ReplyInterpreter{
		resolver:               resolver,
		acknowledgementOkValue: acknowledgementOkValue,
		strictRescue:           strictRescue,
	}
}

// Interpret resolves the outcome fields from rawReply and applies the success and rescue rules.
func (interpreter *ReplyInterpreter) Interpret(rawReply payload.ReplyPayload) CommandOutcome {
	if len(rawReply) == 0 {
		return CommandOutcome{ErrorMessage: emptyReplyMessageConstant}
	}

	effectivePayload := interpreter.resolver.ResolvePayloadEnvelope(rawReply)

	outcome := CommandOutcome{
		StandardOutput: interpreter.resolver.ResolveString(effectivePayload, standardOutputAliases),
		StandardError:  interpreter.resolver.ResolveString(effectivePayload, standardErrorAliases),
		ExitCode:       interpreter.resolveExitCode(effectivePayload, rawReply),
		ErrorCode:      interpreter.resolveErrorCode(effectivePayload, rawReply),
		ErrorMessage:   interpreter.resolver.ResolveString(effectivePayload, errorMessageAliases),
	}

	if acknowledgementCode, found := interpreter.resolver.ResolveIntExact(rawReply, interpreter.resolver.AcknowledgementKeys()); found {
		outcome.AcknowledgementCode = SomeInt(acknowledgementCode)
	}
	outcome.MinimalPayload = interpreter.isMinimalPayload(effectivePayload)
	outcome.AcknowledgedOnly = outcome.AcknowledgementCode.Equals(interpreter.acknowledgementOkValue) && !outcome.ExitCode.Present

	outcome.Succeeded = outcome.ExitCode.Equals(0) && interpreter.errorCodeAcceptable(outcome.ErrorCode, true)
	if !outcome.Succeeded && interpreter.qualifiesForRescue(outcome) {
		outcome.Succeeded = true
	}

	if !outcome.Succeeded && len(strings.TrimSpace(outcome.ErrorMessage)) == 0 {
		outcome.ErrorMessage = replyKeysMessagePrefixConstant + payload.DescribeEntries(rawReply)
	}

	return outcome
}

func (interpreter *ReplyInterpreter) resolveExitCode(effectivePayload payload.ReplyPayload, rawReply payload.ReplyPayload) OptionalInt {
	if exitCode, found := interpreter.resolver.LookupInt(effectivePayload, exitCodeAliases); found {
		return SomeInt(exitCode)
	}
	if exitCode, found := interpreter.resolver.ResolveIntExact(rawReply, []string{topLevelExitCodeKeyConstant, topLevelResultCodeKeyConstant}); found {
		return SomeInt(exitCode)
	}
	if resultValue, found := interpreter.resolver.ResolveIntExact(rawReply, []string{genericResultKeyConstant}); found && resultValue >= 0 {
		return SomeInt(resultValue)
	}
	return NoInt()
}

func (interpreter *ReplyInterpreter) resolveErrorCode(effectivePayload payload.ReplyPayload, rawReply payload.ReplyPayload) OptionalInt {
	if errorCode, found := interpreter.resolver.LookupInt(withoutAliasedKeys(effectivePayload, outputFieldAliases), errorCodeAliases); found {
		return SomeInt(errorCode)
	}
	if errorCode, found := interpreter.resolver.ResolveIntExact(rawReply, []string{topLevelErrorCodeKeyConstant, topLevelErrorKeyConstant}); found && errorCode < 0 {
		return SomeInt(errorCode)
	}
	return NoInt()
}

func (interpreter *ReplyInterpreter) errorCodeAcceptable(errorCode OptionalInt, allowZero bool) bool {
	if !errorCode.Present {
		return true
	}
	if allowZero && errorCode.Value == 0 {
		return true
	}
	return errorCode.Value == interpreter.acknowledgementOkValue
}

func (interpreter *ReplyInterpreter) qualifiesForRescue(outcome CommandOutcome) bool {
	if outcome.ExitCode.Present {
		return false
	}
	if !interpreter.errorCodeAcceptable(outcome.ErrorCode, false) {
		return false
	}
	if len(strings.TrimSpace(outcome.ErrorMessage)) > 0 {
		return false
	}
	if interpreter.strictRescue {
		return outcome.AcknowledgedOnly || outcome.MinimalPayload
	}
	return true
}

func (interpreter *ReplyInterpreter) isMinimalPayload(effectivePayload payload.ReplyPayload) bool {
	if len(effectivePayload) > 1 {
		return false
	}
	for rawKey := range effectivePayload {
		if !interpreter.resolver.IsAcknowledgementKey(rawKey) {
			return false
		}
	}
	return true
}

// withoutAliasedKeys drops entries that name another reply field, so "err" cannot match "STDERR".
func withoutAliasedKeys(effectivePayload payload.ReplyPayload, aliases []string) payload.ReplyPayload {
	normalizedAliases := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		normalizedAliases = append(normalizedAliases, payload.Normalize(alias))
	}
	filteredPayload := make(payload.ReplyPayload, len(effectivePayload))
	for rawKey, value := range effectivePayload {
		if slices.Contains(normalizedAliases, payload.Normalize(rawKey)) {
			continue
		}
		filteredPayload[rawKey] = value
	}
	return filteredPayload
}
