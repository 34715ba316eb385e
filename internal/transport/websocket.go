package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/temirov/shellbridge/internal/bridge"
	"github.com/temirov/shellbridge/internal/payload"
)

const (
	requestFrameTypeConstant         = "run_command"
	websocketSchemeConstant          = "ws"
	secureWebsocketSchemeConstant    = "wss"
	unixSchemeConstant               = "unix"
	unixNetworkConstant              = "unix"
	unixSocketDialURLConstant        = "ws://localhost/"
	defaultEndpointConstant          = "unix:///run/shellhelper/bridge.sock"
	defaultHandshakeTimeoutConstant  = 10 * time.Second
	defaultWriteTimeoutConstant      = 10 * time.Second
	defaultReadLimitBytesConstant    = 1024 * 1024
	connectionLostMessageTemplate    = "communication failure: connection lost: %v"
	errorMessageReplyKeyConstant     = "errmsg"
	dialFailureTemplateConstant      = "dial %s: %w: %w"
	writeFailureTemplateConstant     = "write request frame: %w: %w"
	invalidEndpointTemplateConstant  = "%w: %q"
	connectedLogMessageConstant      = "connected to helper"
	droppedReplyLogMessageConstant   = "dropping reply without listener"
	connectionLostLogMessageConstant = "helper connection lost"
	malformedFrameLogMessageConstant = "ignoring malformed reply frame"
	endpointLogFieldConstant         = "endpoint"
	replyChannelLogFieldConstant     = "reply_channel"
	pendingListenersLogFieldConstant = "pending_listeners"
)

// Transport errors. Unreachable and permission failures share identity with the bridge sentinels.
var (
	ErrHelperUnreachable   = bridge.ErrHelperUnreachable
	ErrPermissionDenied    = bridge.ErrPermissionDenied
	ErrUnsupportedEndpoint = errors.New("unsupported helper endpoint")
)

// Configuration describes how to reach the helper process.
type Configuration struct {
	Endpoint         string        `mapstructure:"endpoint"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadLimitBytes   int64         `mapstructure:"read_limit_bytes"`
}

// DefaultConfiguration returns the transport defaults.
func DefaultConfiguration() Configuration {
	return Configuration{
		Endpoint:         defaultEndpointConstant,
		HandshakeTimeout: defaultHandshakeTimeoutConstant,
		WriteTimeout:     defaultWriteTimeoutConstant,
		ReadLimitBytes:   defaultReadLimitBytesConstant,
	}
}

type requestFrame struct {
	Type             string   `json:"type"`
	ReplyChannel     string   `json:"reply_channel"`
	Process          string   `json:"process"`
	Executable       string   `json:"executable"`
	Arguments        []string `json:"arguments"`
	WorkingDirectory string   `json:"working_directory,omitempty"`
	Background       bool     `json:"background"`
}

type replyFrame struct {
	ReplyChannel string         `json:"reply_channel"`
	Extras       map[string]any `json:"extras"`
}

// WebSocketTransport implements bridge.Transport over a single websocket connection.
type WebSocketTransport struct {
	logger          *zap.Logger
	configuration   Configuration
	dialer          *websocket.Dialer
	dialURL         string
	registry        *listenerRegistry
	connectionMutex sync.Mutex
	connection      *websocket.Conn
	writeMutex      sync.Mutex
}

// NewWebSocketTransport validates the endpoint and prepares a dialer. No connection is made until the first send.
func NewWebSocketTransport(logger *zap.Logger, configuration Configuration) (*WebSocketTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultConfiguration()
	if len(strings.TrimSpace(configuration.Endpoint)) == 0 {
		configuration.Endpoint = defaults.Endpoint
	}
	if configuration.HandshakeTimeout <= 0 {
		configuration.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if configuration.WriteTimeout <= 0 {
		configuration.WriteTimeout = defaults.WriteTimeout
	}
	if configuration.ReadLimitBytes <= 0 {
		configuration.ReadLimitBytes = defaults.ReadLimitBytes
	}

	dialer, dialURL, dialerError := buildDialer(strings.TrimSpace(configuration.Endpoint), configuration.HandshakeTimeout)
	if dialerError != nil {
		return nil, dialerError
	}

	return &WebSocketTransport{
		logger:        logger,
		configuration: configuration,
		dialer:        dialer,
		dialURL:       dialURL,
		registry:      newListenerRegistry(),
	}, nil
}

func buildDialer(endpoint string, handshakeTimeout time.Duration) (*websocket.Dialer, string, error) {
	parsedEndpoint, parseError := url.Parse(endpoint)
	if parseError != nil {
		return nil, "", fmt.Errorf(invalidEndpointTemplateConstant, ErrUnsupportedEndpoint, endpoint)
	}

	switch parsedEndpoint.Scheme {
	case websocketSchemeConstant, secureWebsocketSchemeConstant:
		return &websocket.Dialer{HandshakeTimeout: handshakeTimeout}, endpoint, nil
	case unixSchemeConstant:
		socketPath := parsedEndpoint.Path
		if len(socketPath) == 0 {
			return nil, "", fmt.Errorf(invalidEndpointTemplateConstant, ErrUnsupportedEndpoint, endpoint)
		}
		dialer := &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			NetDialContext: func(dialContext context.Context, _ string, _ string) (net.Conn, error) {
				var socketDialer net.Dialer
				return socketDialer.DialContext(dialContext, unixNetworkConstant, socketPath)
			},
		}
		return dialer, unixSocketDialURLConstant, nil
	default:
		return nil, "", fmt.Errorf(invalidEndpointTemplateConstant, ErrUnsupportedEndpoint, endpoint)
	}
}

// RegisterReplyListener implements bridge.Transport.
func (transport *WebSocketTransport) RegisterReplyListener(channelIdentifier string, listener bridge.ReplyListener) (bridge.ListenerHandle, error) {
	return transport.registry.register(channelIdentifier, listener)
}

// UnregisterReplyListener implements bridge.Transport.
func (transport *WebSocketTransport) UnregisterReplyListener(handle bridge.ListenerHandle) {
	transport.registry.unregister(handle)
}

// SendCommandRequest implements bridge.Transport by writing one request frame.
func (transport *WebSocketTransport) SendCommandRequest(executionContext context.Context, dispatch bridge.CommandDispatch) error {
	connection, connectionError := transport.ensureConnected(executionContext)
	if connectionError != nil {
		return connectionError
	}

	frame := requestFrame{
		Type:             requestFrameTypeConstant,
		ReplyChannel:     dispatch.ReplyChannel,
		Process:          dispatch.ProcessIdentity,
		Executable:       dispatch.Executable,
		Arguments:        append([]string{}, dispatch.Arguments...),
		WorkingDirectory: dispatch.WorkingDirectory,
		Background:       dispatch.Background,
	}

	transport.writeMutex.Lock()
	defer transport.writeMutex.Unlock()

	writeDeadline := time.Now().Add(transport.configuration.WriteTimeout)
	if contextDeadline, hasDeadline := executionContext.Deadline(); hasDeadline && contextDeadline.Before(writeDeadline) {
		writeDeadline = contextDeadline
	}
	if deadlineError := connection.SetWriteDeadline(writeDeadline); deadlineError != nil {
		transport.dropConnection(connection, deadlineError)
		return fmt.Errorf(writeFailureTemplateConstant, ErrHelperUnreachable, deadlineError)
	}
	if writeError := connection.WriteJSON(frame); writeError != nil {
		transport.dropConnection(connection, writeError)
		return fmt.Errorf(writeFailureTemplateConstant, ErrHelperUnreachable, writeError)
	}
	return nil
}

// Close terminates the connection and fails every pending listener.
func (transport *WebSocketTransport) Close() error {
	transport.connectionMutex.Lock()
	connection := transport.connection
	transport.connection = nil
	transport.connectionMutex.Unlock()

	var closeError error
	if connection != nil {
		closeError = connection.Close()
	}
	transport.failPendingListeners(net.ErrClosed)
	return closeError
}

func (transport *WebSocketTransport) ensureConnected(executionContext context.Context) (*websocket.Conn, error) {
	transport.connectionMutex.Lock()
	defer transport.connectionMutex.Unlock()

	if transport.connection != nil {
		return transport.connection, nil
	}

	connection, response, dialError := transport.dialer.DialContext(executionContext, transport.dialURL, nil)
	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}
	if dialError != nil {
		return nil, fmt.Errorf(dialFailureTemplateConstant, transport.configuration.Endpoint, classifyDialError(dialError), dialError)
	}

	connection.SetReadLimit(transport.configuration.ReadLimitBytes)
	transport.connection = connection
	transport.logger.Info(connectedLogMessageConstant, zap.String(endpointLogFieldConstant, transport.configuration.Endpoint))

	go transport.readReplies(connection)
	return connection, nil
}

func (transport *WebSocketTransport) readReplies(connection *websocket.Conn) {
	for {
		_, message, readError := connection.ReadMessage()
		if readError != nil {
			transport.dropConnection(connection, readError)
			return
		}

		frame, decodeError := decodeReplyFrame(message)
		if decodeError != nil {
			transport.logger.Debug(malformedFrameLogMessageConstant, zap.Error(decodeError))
			continue
		}

		listener, registered := transport.registry.take(frame.ReplyChannel)
		if !registered {
			transport.logger.Debug(droppedReplyLogMessageConstant, zap.String(replyChannelLogFieldConstant, frame.ReplyChannel))
			continue
		}

		rawReply := payload.ReplyPayload(frame.Extras)
		if rawReply == nil {
			rawReply = payload.ReplyPayload{}
		}
		listener(rawReply)
	}
}

func (transport *WebSocketTransport) dropConnection(connection *websocket.Conn, cause error) {
	transport.connectionMutex.Lock()
	isCurrent := transport.connection == connection
	if isCurrent {
		transport.connection = nil
	}
	transport.connectionMutex.Unlock()

	if !isCurrent {
		return
	}
	_ = connection.Close()
	transport.logger.Warn(
		connectionLostLogMessageConstant,
		zap.String(endpointLogFieldConstant, transport.configuration.Endpoint),
		zap.Int(pendingListenersLogFieldConstant, transport.registry.pending()),
		zap.Error(cause),
	)
	transport.failPendingListeners(cause)
}

func (transport *WebSocketTransport) failPendingListeners(cause error) {
	for _, listener := range transport.registry.drain() {
		listener(payload.ReplyPayload{errorMessageReplyKeyConstant: fmt.Sprintf(connectionLostMessageTemplate, cause)})
	}
}

func decodeReplyFrame(message []byte) (replyFrame, error) {
	decoder := json.NewDecoder(bytes.NewReader(message))
	decoder.UseNumber()
	var frame replyFrame
	if decodeError := decoder.Decode(&frame); decodeError != nil {
		return replyFrame{}, decodeError
	}
	return frame, nil
}

func classifyDialError(dialError error) error {
	if errors.Is(dialError, syscall.EACCES) || errors.Is(dialError, syscall.EPERM) {
		return ErrPermissionDenied
	}
	return ErrHelperUnreachable
}
