package platform

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/temirov/shellbridge/internal/execshell"
)

const (
	versionFlagConstant                       = "--version"
	versionPatternConstant                    = `\d+(\.\d+)+`
	lineBreakConstant                         = "\n"
	processListingFailedLogMessageConstant    = "unable to list running processes"
	processNameLookupFailedLogMessageConstant = "unable to read process name"
	permissionCheckFailedLogMessageConstant   = "permission check failed"
	launchFailedLogMessageConstant            = "helper launch failed"
	launchedLogMessageConstant                = "helper launched"
	identityLogFieldConstant                  = "identity"
	permissionLogFieldConstant                = "permission"
	processIdentifierLogFieldConstant         = "pid"
)

// ErrExecutorNotConfigured indicates that OSHost was constructed without a shell executor.
var ErrExecutorNotConfigured = errors.New("platform shell executor not configured")

var versionPattern = regexp.MustCompile(versionPatternConstant)

// ExecutableLookup resolves an executable name to a path.
type ExecutableLookup func(name string) (string, error)

// ProcessNameLister returns the names of running processes.
type ProcessNameLister func(executionContext context.Context) ([]string, error)

// PathAccessChecker reports whether the current user may read and write path.
type PathAccessChecker func(path string) error

// Dependencies enumerates the collaborators used by OSHost. Nil lookups use the operating system.
type Dependencies struct {
	Logger            *zap.Logger
	Executor          *execshell.ShellExecutor
	ExecutableLookup  ExecutableLookup
	ProcessNameLister ProcessNameLister
	PathAccessChecker PathAccessChecker
}

// OSHost implements helper discovery, version queries, launch, and permission checks.
type OSHost struct {
	logger            *zap.Logger
	executor          *execshell.ShellExecutor
	executableLookup  ExecutableLookup
	processNameLister ProcessNameLister
	pathAccessChecker PathAccessChecker
}

// NewOSHost validates dependencies and constructs an OSHost.
func NewOSHost(dependencies Dependencies) (*OSHost, error) {
	if dependencies.Executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	executableLookup := dependencies.ExecutableLookup
	if executableLookup == nil {
		executableLookup = exec.LookPath
	}
	processNameLister := dependencies.ProcessNameLister
	if processNameLister == nil {
		processNameLister = newRunningProcessNameLister(logger)
	}
	pathAccessChecker := dependencies.PathAccessChecker
	if pathAccessChecker == nil {
		pathAccessChecker = checkPathAccess
	}
	return &OSHost{
		logger:            logger,
		executor:          dependencies.Executor,
		executableLookup:  executableLookup,
		processNameLister: processNameLister,
		pathAccessChecker: pathAccessChecker,
	}, nil
}

// IsProcessInstalled reports whether identity is an executable on PATH or a running process.
func (host *OSHost) IsProcessInstalled(executionContext context.Context, identity string) bool {
	trimmedIdentity := strings.TrimSpace(identity)
	if len(trimmedIdentity) == 0 {
		return false
	}
	if _, lookupError := host.executableLookup(trimmedIdentity); lookupError == nil {
		return true
	}
	processNames, listingError := host.processNameLister(executionContext)
	if listingError != nil {
		host.logger.Debug(processListingFailedLogMessageConstant, zap.Error(listingError))
		return false
	}
	for _, processName := range processNames {
		if processName == trimmedIdentity {
			return true
		}
	}
	return false
}

// FindInstalledProcess returns the first identity that IsProcessInstalled accepts.
func (host *OSHost) FindInstalledProcess(executionContext context.Context, identities []string) (string, bool) {
	for _, identity := range identities {
		if host.IsProcessInstalled(executionContext, identity) {
			return strings.TrimSpace(identity), true
		}
	}
	return "", false
}

// LaunchProcess starts identity as a detached process and reports whether it started.
func (host *OSHost) LaunchProcess(executionContext context.Context, identity string) bool {
	processIdentifier, startError := host.executor.StartDetached(executionContext, strings.TrimSpace(identity), execshell.CommandDetails{})
	if startError != nil {
		host.logger.Debug(launchFailedLogMessageConstant, zap.String(identityLogFieldConstant, identity), zap.Error(startError))
		return false
	}
	host.logger.Debug(launchedLogMessageConstant, zap.String(identityLogFieldConstant, identity), zap.Int(processIdentifierLogFieldConstant, processIdentifier))
	return true
}

// ProcessVersion runs "identity --version" and extracts the first dotted version number.
// An empty string means the version could not be determined.
func (host *OSHost) ProcessVersion(executionContext context.Context, identity string) (string, error) {
	executionResult, executionError := host.executor.ExecuteProcess(executionContext, strings.TrimSpace(identity), execshell.CommandDetails{Arguments: []string{versionFlagConstant}})
	if executionError != nil {
		return "", executionError
	}
	return ExtractVersion(executionResult.StandardOutput), nil
}

// IsPermissionGranted reports whether the current user may open the path named by permission.
// A blank permission is always granted.
func (host *OSHost) IsPermissionGranted(permission string) bool {
	trimmedPermission := strings.TrimSpace(permission)
	if len(trimmedPermission) == 0 {
		return true
	}
	if accessError := host.pathAccessChecker(trimmedPermission); accessError != nil {
		host.logger.Debug(permissionCheckFailedLogMessageConstant, zap.String(permissionLogFieldConstant, trimmedPermission), zap.Error(accessError))
		return false
	}
	return true
}

// ExtractVersion returns the first dotted version number found in the first non-blank line of output.
func ExtractVersion(output string) string {
	for _, line := range strings.Split(output, lineBreakConstant) {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) == 0 {
			continue
		}
		return versionPattern.FindString(trimmedLine)
	}
	return ""
}

func newRunningProcessNameLister(logger *zap.Logger) ProcessNameLister {
	return func(executionContext context.Context) ([]string, error) {
		runningProcesses, listingError := process.ProcessesWithContext(executionContext)
		if listingError != nil {
			return nil, listingError
		}
		processNames := make([]string, 0, len(runningProcesses))
		for _, runningProcess := range runningProcesses {
			processName, nameError := runningProcess.NameWithContext(executionContext)
			if nameError != nil {
				logger.Debug(processNameLookupFailedLogMessageConstant, zap.Int32(processIdentifierLogFieldConstant, runningProcess.Pid), zap.Error(nameError))
				continue
			}
			processNames = append(processNames, processName)
		}
		return processNames, nil
	}
}
