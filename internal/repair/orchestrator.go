package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/shellbridge/internal/bridge"
	"github.com/temirov/shellbridge/internal/classify"
	"github.com/temirov/shellbridge/internal/progress"
)

const (
	doneSuccessLineConstant               = "__DONE__:success"
	doneFailedLineConstant                = "__DONE__:failed"
	identitySeparatorConstant             = ", "
	lineBreakConstant                     = "\n"
	processNotFoundTemplateConstant       = "[error] helper process not found (%s)"
	processDetectedTemplateConstant       = "[info] helper process detected: %s"
	processVersionTemplateConstant        = "[info] helper version: %s"
	versionTooOldTemplateConstant         = "[error] helper version %s is older than %s"
	versionHintTemplateConstant           = "[hint] update the helper to version >= %s"
	permissionMissingTemplateConstant     = "[error] permission %s is not granted"
	permissionHintTemplateConstant        = "[hint] grant the current user read and write access to %s, for example by joining the helper's group"
	setupStartingLineConstant             = "[info] running automatic setup through the helper (background)"
	setupGateHintLineConstant             = "[hint] make sure allow-external-apps=true is set in ~/.shellhelper/shellhelper.properties"
	bridgeProbeHeaderLineConstant         = "[precheck 1/2] validating the command bridge to the helper"
	bridgeProbeDebugTemplateConstant      = "[debug] bridge: success=%t, exit=%s, err=%s, ack=%t, marker=%t, minimal=%t"
	probeCommunicationErrorTemplate       = "[error] communication with the helper failed: %s"
	bridgeProbeUnusualReplyTemplate       = "[warn] unusual bridge reply: exit=%s, err=%s, msg=%s"
	bridgeProbeContinuingLineConstant     = "[warn] continuing with the setup commands"
	bridgeProbeMinimalLineConstant        = "[warn] the helper reply only carried an acknowledgement code; this is normal for some helper versions"
	bridgeProbeMinimalContinueLine        = "[info] continuing setup without output validation"
	bridgeProbeAcknowledgedLineConstant   = "[warn] reply without stdout or exit details; continuing setup"
	bridgeProbeSucceededLineConstant      = "[ok] command bridge to the helper works"
	configProbeHeaderLineConstant         = "[precheck 2/2] checking allow-external-apps in the helper"
	configProbeDebugTemplateConstant      = "[debug] allow-external-apps: success=%t, enabled=%t, exit=%s"
	configProbeEnabledLineConstant        = "[ok] allow-external-apps is already enabled"
	configProbeDisabledLineConstant       = "[warn] allow-external-apps is not enabled yet; the setup commands will enable it"
	configProbeUnknownLineConstant        = "[warn] unable to verify allow-external-apps from the reply; continuing setup"
	configProbeEnabledSuffixConstant      = "=true"
	stepHeaderTemplateConstant            = "[step %d/%d] %s"
	stepDebugTemplateConstant             = "[debug] step %d: success=%t, exit=%s, err=%s"
	stepCommandFailedTemplateConstant     = "[error] command failed: %s"
	stepInstallFailedTemplateConstant     = "[error] install step failed (exit=%s); check stderr above"
	stepIncompleteReplyLineConstant       = "[warn] incomplete reply, the command may have succeeded; continuing"
	stepVerificationFailedTemplate        = "[warn] verification of '%s' failed (exit=%s); it may not be installed yet"
	setupCompleteLineConstant             = "[ok] helper environment setup finished"
	runCrashedTemplateConstant            = "[error] repair crashed: %v"
	stdoutTagConstant                     = "[stdout]"
	stderrTagConstant                     = "[stderr]"
	taggedLineTemplateConstant            = "%s %s"
	runStartedLogMessageConstant          = "repair run started"
	runFinishedLogMessageConstant         = "repair run finished"
	runCrashedLogMessageConstant          = "repair run crashed"
	versionLookupFailedLogMessageConstant = "unable to read helper version"
	identityLogFieldConstant              = "identity"
	succeededLogFieldConstant             = "succeeded"
	stepsLogFieldConstant                 = "steps"
	panicLogFieldConstant                 = "panic"
	blockedHintIntroLineConstant          = "[hint] enable external commands in the helper:"
	blockedHintOpenLineConstant           = "[hint] 1) open a helper shell"
	blockedHintDirectoryLineConstant      = "[hint] 2) run: mkdir -p ~/.shellhelper"
	blockedHintPropertyLineConstant       = "[hint] 3) run: echo 'allow-external-apps=true' >> ~/.shellhelper/shellhelper.properties"
	blockedHintReloadLineConstant         = "[hint] 4) run: shellhelper-reload-settings"
	blockedHintRetryLineConstant          = "[hint] 5) run repair again"
	bootstrapHintIntroLineConstant        = "[hint] start the helper once so it can finish its first-run setup"
	bootstrapHintLaunchedLineConstant     = "[hint] the helper was started automatically; run repair again once it is ready"
	bootstrapHintLaunchFailedLineConstant = "[hint] unable to start the helper automatically; start it manually and run repair again"
	bootstrapHintDirectoryIntroLine       = "[hint] make sure the helper configuration directory exists with mode 0700:"
	bootstrapHintDirectoryCreateLine      = "[hint] mkdir -p ~/.shellhelper"
	bootstrapHintDirectoryPermissionLine  = "[hint] chmod 700 ~/.shellhelper"
	commandWordSeparatorConstant          = " "
	unknownStepActionTemplateConstant     = "no step policy for critical=%t verdict=%s"
)

// Orchestrator errors.
var (
	ErrRunInProgress                  = errors.New("repair run already in progress")
	ErrExecutorNotConfigured          = errors.New("repair command executor not configured")
	ErrInspectorNotConfigured         = errors.New("repair process inspector not configured")
	ErrPermissionCheckerNotConfigured = errors.New("repair permission checker not configured")
)

// CommandExecutor runs one shell command inside the helper.
type CommandExecutor interface {
	Execute(executionContext context.Context, request bridge.CommandRequest) bridge.CommandOutcome
}

// ProcessInspector discovers, queries, and launches the helper process.
type ProcessInspector interface {
	IsProcessInstalled(executionContext context.Context, identity string) bool
	LaunchProcess(executionContext context.Context, identity string) bool
	ProcessVersion(executionContext context.Context, identity string) (string, error)
}

// PermissionChecker reports whether a platform permission is granted.
type PermissionChecker interface {
	IsPermissionGranted(permission string) bool
}

// LineSink receives progress lines as they are produced.
type LineSink interface {
	Push(line string)
}

// OrchestrationResult summarizes a finished run.
type OrchestrationResult struct {
	OverallSuccess bool
	LogLines       []string
}

// Dependencies enumerates the collaborators required by Orchestrator.
type Dependencies struct {
	Logger      *zap.Logger
	Executor    CommandExecutor
	Inspector   ProcessInspector
	Permissions PermissionChecker
	Classifier  *classify.Classifier
	Sink        LineSink
}

// Orchestrator runs the diagnostic and setup sequence. At most one run is active at a time.
type Orchestrator struct {
	logger        *zap.Logger
	executor      CommandExecutor
	inspector     ProcessInspector
	permissions   PermissionChecker
	classifier    *classify.Classifier
	sink          LineSink
	configuration Configuration
	state         atomic.Int32
}

// NewOrchestrator validates dependencies and constructs an Orchestrator.
func NewOrchestrator(dependencies Dependencies, configuration Configuration) (*Orchestrator, error) {
	if dependencies.Executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if dependencies.Inspector == nil {
		return nil, ErrInspectorNotConfigured
	}
	if dependencies.Permissions == nil {
		return nil, ErrPermissionCheckerNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier := dependencies.Classifier
	if classifier == nil {
		classifier = classify.NewClassifier(classify.DefaultConfiguration())
	}
	sink := dependencies.Sink
	if sink == nil {
		sink = progress.ConsumerFunc(func(string) {})
	}

	return &Orchestrator{
		logger:        logger,
		executor:      dependencies.Executor,
		inspector:     dependencies.Inspector,
		permissions:   dependencies.Permissions,
		classifier:    classifier,
		sink:          sink,
		configuration: configuration.Sanitize(),
	}, nil
}

// State returns the current orchestration state.
func (orchestrator *Orchestrator) State() State {
	return State(orchestrator.state.Load())
}

// Start begins a run on a background goroutine. The returned channel yields exactly one result.
// Start returns ErrRunInProgress without side effects when a run is already active.
func (orchestrator *Orchestrator) Start(executionContext context.Context) (<-chan OrchestrationResult, error) {
	if !orchestrator.beginRun() {
		return nil, ErrRunInProgress
	}

	results := make(chan OrchestrationResult, 1)
	go func() {
		defer close(results)
		results <- orchestrator.execute(executionContext)
	}()
	return results, nil
}

// Run starts a run and waits for it to finish.
func (orchestrator *Orchestrator) Run(executionContext context.Context) (OrchestrationResult, error) {
	results, startError := orchestrator.Start(executionContext)
	if startError != nil {
		return OrchestrationResult{}, startError
	}
	return <-results, nil
}

func (orchestrator *Orchestrator) beginRun() bool {
	for {
		currentState := State(orchestrator.state.Load())
		if currentState.Active() {
			return false
		}
		if orchestrator.state.CompareAndSwap(int32(currentState), int32(StateProbing)) {
			return true
		}
	}
}

func (orchestrator *Orchestrator) execute(executionContext context.Context) (result OrchestrationResult) {
	session := newRunSession(orchestrator.sink)
	succeeded := false
	orchestrator.logger.Info(runStartedLogMessageConstant, zap.Int(stepsLogFieldConstant, len(orchestrator.configuration.Steps)))

	defer func() {
		if recovered := recover(); recovered != nil {
			orchestrator.logger.Error(runCrashedLogMessageConstant, zap.Any(panicLogFieldConstant, recovered))
			session.emit(fmt.Sprintf(runCrashedTemplateConstant, recovered))
			succeeded = false
		}

		terminalState := StateFailed
		if succeeded {
			terminalState = StateSucceeded
		}
		orchestrator.state.Store(int32(terminalState))
		orchestrator.logger.Info(runFinishedLogMessageConstant, zap.Bool(succeededLogFieldConstant, succeeded))

		if succeeded {
			session.emit(doneSuccessLineConstant)
		} else {
			session.emit(doneFailedLineConstant)
		}
		result = OrchestrationResult{OverallSuccess: succeeded, LogLines: session.snapshot()}
	}()

	succeeded = orchestrator.repair(executionContext, session)
	return result
}

func (orchestrator *Orchestrator) repair(executionContext context.Context, session *runSession) bool {
	identity, found := orchestrator.findProcess(executionContext)
	if !found {
		session.emit(fmt.Sprintf(processNotFoundTemplateConstant, strings.Join(orchestrator.configuration.ProcessIdentities, identitySeparatorConstant)))
		return false
	}
	session.emit(fmt.Sprintf(processDetectedTemplateConstant, identity))

	if !orchestrator.checkVersion(executionContext, session, identity) {
		return false
	}
	if !orchestrator.checkPermission(session) {
		return false
	}

	session.emit(setupStartingLineConstant)
	session.emit(setupGateHintLineConstant)

	if !orchestrator.probeBridge(executionContext, session, identity) {
		return false
	}
	if !orchestrator.probeConfiguration(executionContext, session, identity) {
		return false
	}

	orchestrator.state.Store(int32(StateSettingUp))
	return orchestrator.runSetupSteps(executionContext, session, identity)
}

func (orchestrator *Orchestrator) findProcess(executionContext context.Context) (string, bool) {
	for _, identity := range orchestrator.configuration.ProcessIdentities {
		if orchestrator.inspector.IsProcessInstalled(executionContext, identity) {
			return identity, true
		}
	}
	return "", false
}

func (orchestrator *Orchestrator) checkVersion(executionContext context.Context, session *runSession, identity string) bool {
	versionContext, cancelVersion := context.WithTimeout(executionContext, orchestrator.configuration.ProbeTimeout)
	version, versionError := orchestrator.inspector.ProcessVersion(versionContext, identity)
	cancelVersion()
	if versionError != nil {
		orchestrator.logger.Debug(versionLookupFailedLogMessageConstant, zap.String(identityLogFieldConstant, identity), zap.Error(versionError))
		version = ""
	}
	if len(strings.TrimSpace(version)) > 0 {
		session.emit(fmt.Sprintf(processVersionTemplateConstant, version))
	}

	minimumVersion := orchestrator.configuration.MinimumVersion
	if IsVersionAtLeast(version, minimumVersion) {
		return true
	}
	session.emit(fmt.Sprintf(versionTooOldTemplateConstant, version, minimumVersion))
	session.emit(fmt.Sprintf(versionHintTemplateConstant, minimumVersion))
	return false
}

func (orchestrator *Orchestrator) checkPermission(session *runSession) bool {
	requiredPermission := orchestrator.configuration.RequiredPermission
	if orchestrator.permissions.IsPermissionGranted(requiredPermission) {
		return true
	}
	session.emit(fmt.Sprintf(permissionMissingTemplateConstant, requiredPermission))
	session.emit(fmt.Sprintf(permissionHintTemplateConstant, requiredPermission))
	return false
}

func (orchestrator *Orchestrator) probeBridge(executionContext context.Context, session *runSession, identity string) bool {
	session.emit(bridgeProbeHeaderLineConstant)
	outcome := orchestrator.executeCommand(executionContext, session, identity, orchestrator.configuration.BridgeProbeCommand(), orchestrator.configuration.ProbeTimeout)

	markerFound := strings.Contains(outcome.StandardOutput+lineBreakConstant+outcome.StandardError, orchestrator.configuration.BridgeProbeMarker)
	session.emit(fmt.Sprintf(
		bridgeProbeDebugTemplateConstant,
		outcome.Succeeded,
		outcome.ExitCode,
		outcome.ErrorCode,
		outcome.AcknowledgedOnly,
		markerFound,
		outcome.MinimalPayload,
	))

	if markerFound {
		session.emit(bridgeProbeSucceededLineConstant)
		return true
	}

	switch orchestrator.classifier.Classify(outcome, false) {
	case classify.HardFail:
		session.emit(fmt.Sprintf(probeCommunicationErrorTemplate, outcome.ErrorMessage))
		orchestrator.emitRemediationHints(executionContext, session, identity, outcome)
		return false
	case classify.SoftFail:
		session.emit(fmt.Sprintf(bridgeProbeUnusualReplyTemplate, outcome.ExitCode, outcome.ErrorCode, outcome.ErrorMessage))
		session.emit(bridgeProbeContinuingLineConstant)
	}

	switch {
	case outcome.AcknowledgedOnly && outcome.MinimalPayload:
		session.emit(bridgeProbeMinimalLineConstant)
		session.emit(bridgeProbeMinimalContinueLine)
	case outcome.AcknowledgedOnly:
		session.emit(bridgeProbeAcknowledgedLineConstant)
	}
	return true
}

func (orchestrator *Orchestrator) probeConfiguration(executionContext context.Context, session *runSession, identity string) bool {
	session.emit(configProbeHeaderLineConstant)
	outcome := orchestrator.executeCommand(executionContext, session, identity, orchestrator.configuration.ConfigProbeCommand(), orchestrator.configuration.ProbeTimeout)

	combinedOutput := strings.ToLower(outcome.StandardOutput + lineBreakConstant + outcome.StandardError)
	enabled := strings.Contains(combinedOutput, strings.ToLower(orchestrator.configuration.ConfigProbeMarker+configProbeEnabledSuffixConstant))
	session.emit(fmt.Sprintf(configProbeDebugTemplateConstant, outcome.Succeeded, enabled, outcome.ExitCode))

	if orchestrator.classifier.Classify(outcome, false) == classify.HardFail {
		session.emit(fmt.Sprintf(probeCommunicationErrorTemplate, outcome.ErrorMessage))
		orchestrator.emitRemediationHints(executionContext, session, identity, outcome)
		return false
	}

	switch {
	case enabled:
		session.emit(configProbeEnabledLineConstant)
	case outcome.Succeeded:
		session.emit(configProbeDisabledLineConstant)
	default:
		session.emit(configProbeUnknownLineConstant)
	}
	return true
}

func (orchestrator *Orchestrator) runSetupSteps(executionContext context.Context, session *runSession, identity string) bool {
	totalSteps := len(orchestrator.configuration.Steps)
	for stepIndex, step := range orchestrator.configuration.Steps {
		stepNumber := stepIndex + 1
		session.emit(fmt.Sprintf(stepHeaderTemplateConstant, stepNumber, totalSteps, step.Command))
		outcome := orchestrator.executeCommand(executionContext, session, identity, step.Command, step.Timeout)
		session.emit(fmt.Sprintf(stepDebugTemplateConstant, stepNumber, outcome.Succeeded, outcome.ExitCode, outcome.ErrorCode))

		verdict := orchestrator.classifier.Classify(outcome, step.Critical)
		switch lookupStepAction(step.Critical, verdict) {
		case stepActionProceed:
		case stepActionWarnIncomplete:
			session.emit(stepIncompleteReplyLineConstant)
		case stepActionWarnVerification:
			session.emit(fmt.Sprintf(stepVerificationFailedTemplate, firstCommandWord(step.Command), outcome.ExitCode))
		case stepActionAbort:
			if orchestrator.classifier.MatchesHardFailurePattern(outcome) {
				session.emit(fmt.Sprintf(stepCommandFailedTemplateConstant, outcome.ErrorMessage))
				if orchestrator.classifier.LooksLikeBlockedByConfig(outcome) {
					session.emitAll(blockedConfigHintLines())
				}
			} else {
				session.emit(fmt.Sprintf(stepInstallFailedTemplateConstant, outcome.ExitCode))
			}
			return false
		}
	}

	session.emit(setupCompleteLineConstant)
	return true
}

func (orchestrator *Orchestrator) executeCommand(executionContext context.Context, session *runSession, identity string, shellCommand string, timeout time.Duration) bridge.CommandOutcome {
	outcome := orchestrator.executor.Execute(executionContext, bridge.CommandRequest{
		TargetProcessIdentity: identity,
		ShellCommand:          shellCommand,
		Timeout:               timeout,
	})
	session.emitTagged(stdoutTagConstant, outcome.StandardOutput, orchestrator.configuration.OutputTailLines)
	session.emitTagged(stderrTagConstant, outcome.StandardError, orchestrator.configuration.OutputTailLines)
	return outcome
}

func (orchestrator *Orchestrator) emitRemediationHints(executionContext context.Context, session *runSession, identity string, outcome bridge.CommandOutcome) {
	if orchestrator.classifier.LooksLikeBlockedByConfig(outcome) {
		session.emitAll(blockedConfigHintLines())
		return
	}

	session.emit(bootstrapHintIntroLineConstant)
	if orchestrator.inspector.LaunchProcess(executionContext, identity) {
		session.emit(bootstrapHintLaunchedLineConstant)
	} else {
		session.emit(bootstrapHintLaunchFailedLineConstant)
	}
	session.emitAll([]string{
		bootstrapHintDirectoryIntroLine,
		bootstrapHintDirectoryCreateLine,
		bootstrapHintDirectoryPermissionLine,
	})
}

func blockedConfigHintLines() []string {
	return []string{
		blockedHintIntroLineConstant,
		blockedHintOpenLineConstant,
		blockedHintDirectoryLineConstant,
		blockedHintPropertyLineConstant,
		blockedHintReloadLineConstant,
		blockedHintRetryLineConstant,
	}
}

func firstCommandWord(shellCommand string) string {
	commandWords := strings.SplitN(strings.TrimSpace(shellCommand), commandWordSeparatorConstant, 2)
	return commandWords[0]
}

type stepAction int

const (
	stepActionProceed stepAction = iota
	stepActionWarnIncomplete
	stepActionWarnVerification
	stepActionAbort
)

type stepPolicyKey struct {
	critical bool
	verdict  classify.Verdict
}

// Critical steps abort only on HardFail; non-critical steps never abort.
var stepPolicy = map[stepPolicyKey]stepAction{
	{critical: true, verdict: classify.Success}:   stepActionProceed,
	{critical: true, verdict: classify.SoftFail}:  stepActionWarnIncomplete,
	{critical: true, verdict: classify.HardFail}:  stepActionAbort,
	{critical: false, verdict: classify.Success}:  stepActionProceed,
	{critical: false, verdict: classify.SoftFail}: stepActionWarnVerification,
	{critical: false, verdict: classify.HardFail}: stepActionWarnVerification,
}

func lookupStepAction(critical bool, verdict classify.Verdict) stepAction {
	action, found := stepPolicy[stepPolicyKey{critical: critical, verdict: verdict}]
	if !found {
		panic(fmt.Sprintf(unknownStepActionTemplateConstant, critical, verdict))
	}
	return action
}

// runSession collects the lines of one run and forwards them to the sink.
type runSession struct {
	sink  LineSink
	mutex sync.Mutex
	lines []string
}

func newRunSession(sink LineSink) *runSession {
	return &runSession{sink: sink}
}

// emit records line and forwards it to the sink. A panicking sink only loses the line.
func (session *runSession) emit(line string) {
	session.mutex.Lock()
	session.lines = append(session.lines, line)
	session.mutex.Unlock()

	defer func() {
		_ = recover()
	}()
	session.sink.Push(line)
}

func (session *runSession) emitAll(lines []string) {
	for _, line := range lines {
		session.emit(line)
	}
}

func (session *runSession) emitTagged(tag string, rawOutput string, limit int) {
	for _, outputLine := range progress.TailLines(rawOutput, limit) {
		session.emit(fmt.Sprintf(taggedLineTemplateConstant, tag, outputLine))
	}
}

func (session *runSession) snapshot() []string {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return append([]string{}, session.lines...)
}
