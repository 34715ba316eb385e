package dependencies

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/shellbridge/internal/bridge"
	"github.com/temirov/shellbridge/internal/classify"
	"github.com/temirov/shellbridge/internal/execshell"
	"github.com/temirov/shellbridge/internal/payload"
	"github.com/temirov/shellbridge/internal/platform"
	"github.com/temirov/shellbridge/internal/repair"
	"github.com/temirov/shellbridge/internal/transport"
	"github.com/temirov/shellbridge/internal/ui"
	pathutils "github.com/temirov/shellbridge/internal/utils/path"
)

const (
	unixEndpointSchemeConstant           = "unix"
	transportCreationErrorTemplate       = "unable to create helper transport: %w"
	bridgeCreationErrorTemplate          = "unable to create command bridge: %w"
	executorCreationErrorTemplate        = "unable to create shell executor: %w"
	hostCreationErrorTemplate            = "unable to create host inspector: %w"
	scriptLoadErrorTemplateConstant      = "unable to load setup script %s: %w"
	orchestratorCreationErrorTemplate    = "unable to create repair orchestrator: %w"
	runtimeResolvedLogMessageConstant    = "runtime resolved"
	endpointLogFieldConstant             = "endpoint"
	requiredPermissionLogFieldConstant   = "required_permission"
	runtimeCloseFailedLogMessageConstant = "unable to close helper transport"
)

// ErrRuntimeNotResolved indicates that a Runtime method was invoked on a nil runtime.
var ErrRuntimeNotResolved = errors.New("runtime not resolved")

// Configuration gathers every section needed to build the runtime graph.
type Configuration struct {
	Transport  transport.Configuration       `mapstructure:"transport"`
	Bridge     bridge.Configuration          `mapstructure:"bridge"`
	Resolver   payload.ResolverConfiguration `mapstructure:"resolver"`
	Classifier classify.Configuration        `mapstructure:"classifier"`
	Repair     repair.Configuration          `mapstructure:"repair"`
}

// DefaultConfiguration returns the defaults of every section.
func DefaultConfiguration() Configuration {
	return Configuration{
		Transport:  transport.DefaultConfiguration(),
		Bridge:     bridge.DefaultConfiguration(),
		Resolver:   payload.DefaultResolverConfiguration(),
		Classifier: classify.DefaultConfiguration(),
		Repair:     repair.DefaultConfiguration(),
	}
}

// Runtime holds the collaborators built from a Configuration.
type Runtime struct {
	Logger        *zap.Logger
	Transport     *transport.WebSocketTransport
	Bridge        *bridge.Bridge
	Host          *platform.OSHost
	Classifier    *classify.Classifier
	Configuration Configuration
}

// RuntimeResolver creates runtimes for the CLI commands.
type RuntimeResolver interface {
	Resolve(logger *zap.Logger, consoleLogger *zap.Logger, configuration Configuration) (*Runtime, error)
}

// DefaultRuntimeResolver builds runtimes backed by the websocket transport and the operating system.
type DefaultRuntimeResolver struct {
	CommandRunner execshell.CommandRunner
	HomeExpander  *pathutils.HomeExpander
}

// Resolve builds the transport, bridge, and host inspector. Bridge events are reported through consoleLogger.
func (resolver *DefaultRuntimeResolver) Resolve(logger *zap.Logger, consoleLogger *zap.Logger, configuration Configuration) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if consoleLogger == nil {
		consoleLogger = logger
	}

	homeExpander := resolver.HomeExpander
	if homeExpander == nil {
		homeExpander = pathutils.NewHomeExpander()
	}

	helperTransport, transportError := transport.NewWebSocketTransport(logger, configuration.Transport)
	if transportError != nil {
		return nil, fmt.Errorf(transportCreationErrorTemplate, transportError)
	}

	bridgeConfiguration := configuration.Bridge
	bridgeConfiguration.HomeDirectory = homeExpander.Expand(bridgeConfiguration.HomeDirectory)
	commandBridge, bridgeError := bridge.NewBridge(bridge.Dependencies{
		Logger:    logger,
		Transport: helperTransport,
		Resolver:  payload.NewKeyResolver(configuration.Resolver),
		Observer:  ui.NewConsoleBridgeEventLogger(consoleLogger),
	}, bridgeConfiguration)
	if bridgeError != nil {
		return nil, fmt.Errorf(bridgeCreationErrorTemplate, bridgeError)
	}

	commandRunner := resolver.CommandRunner
	if commandRunner == nil {
		commandRunner = execshell.NewOSCommandRunner()
	}
	shellExecutor, executorError := execshell.NewShellExecutor(logger, commandRunner)
	if executorError != nil {
		return nil, fmt.Errorf(executorCreationErrorTemplate, executorError)
	}

	host, hostError := platform.NewOSHost(platform.Dependencies{Logger: logger, Executor: shellExecutor})
	if hostError != nil {
		return nil, fmt.Errorf(hostCreationErrorTemplate, hostError)
	}

	helperEndpoint := strings.TrimSpace(configuration.Transport.Endpoint)
	if len(helperEndpoint) == 0 {
		helperEndpoint = transport.DefaultConfiguration().Endpoint
	}
	repairConfiguration, repairError := resolveRepairConfiguration(configuration.Repair, helperEndpoint, homeExpander)
	if repairError != nil {
		return nil, repairError
	}
	configuration.Repair = repairConfiguration
	configuration.Bridge = bridgeConfiguration

	logger.Debug(
		runtimeResolvedLogMessageConstant,
		zap.String(endpointLogFieldConstant, helperEndpoint),
		zap.String(requiredPermissionLogFieldConstant, repairConfiguration.RequiredPermission),
	)

	return &Runtime{
		Logger:        logger,
		Transport:     helperTransport,
		Bridge:        commandBridge,
		Host:          host,
		Classifier:    classify.NewClassifier(configuration.Classifier),
		Configuration: configuration,
	}, nil
}

// NewOrchestrator builds a repair orchestrator that streams its lines to sink.
func (runtime *Runtime) NewOrchestrator(sink repair.LineSink) (*repair.Orchestrator, error) {
	if runtime == nil {
		return nil, ErrRuntimeNotResolved
	}
	orchestrator, orchestratorError := repair.NewOrchestrator(repair.Dependencies{
		Logger:      runtime.Logger,
		Executor:    runtime.Bridge,
		Inspector:   runtime.Host,
		Permissions: runtime.Host,
		Classifier:  runtime.Classifier,
		Sink:        sink,
	}, runtime.Configuration.Repair)
	if orchestratorError != nil {
		return nil, fmt.Errorf(orchestratorCreationErrorTemplate, orchestratorError)
	}
	return orchestrator, nil
}

// Close releases the helper connection.
func (runtime *Runtime) Close() {
	if runtime == nil || runtime.Transport == nil {
		return
	}
	if closeError := runtime.Transport.Close(); closeError != nil {
		runtime.Logger.Debug(runtimeCloseFailedLogMessageConstant, zap.Error(closeError))
	}
}

// DeriveRequiredPermission returns the socket path of a unix endpoint, or an empty string for network endpoints.
func DeriveRequiredPermission(endpoint string) string {
	parsedEndpoint, parseError := url.Parse(strings.TrimSpace(endpoint))
	if parseError != nil || !strings.EqualFold(parsedEndpoint.Scheme, unixEndpointSchemeConstant) {
		return ""
	}
	return parsedEndpoint.Path
}

func resolveRepairConfiguration(configuration repair.Configuration, endpoint string, homeExpander *pathutils.HomeExpander) (repair.Configuration, error) {
	resolvedConfiguration := configuration
	resolvedConfiguration.RequiredPermission = homeExpander.Expand(resolvedConfiguration.RequiredPermission)
	if len(resolvedConfiguration.RequiredPermission) == 0 {
		resolvedConfiguration.RequiredPermission = DeriveRequiredPermission(endpoint)
	}

	scriptPath := homeExpander.Expand(resolvedConfiguration.ScriptPath)
	if len(scriptPath) > 0 {
		scriptSteps, scriptError := repair.LoadScript(scriptPath)
		if scriptError != nil {
			return repair.Configuration{}, fmt.Errorf(scriptLoadErrorTemplateConstant, scriptPath, scriptError)
		}
		resolvedConfiguration.Steps = scriptSteps
		resolvedConfiguration.ScriptPath = scriptPath
	}
	return resolvedConfiguration.Sanitize(), nil
}
