package transport_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/shellbridge/internal/bridge"
	"github.com/temirov/shellbridge/internal/payload"
	"github.com/temirov/shellbridge/internal/transport"
)

const (
	testReplyChannelConstant    = "test.reply.1"
	testProcessIdentityConstant = "shellhelper"
	testExecutableConstant      = "/usr/bin/bash"
	testReplyWaitConstant       = 5 * time.Second
	testSocketFileNameConstant  = "helper.sock"
)

type helperFrameHandler func(connection *websocket.Conn, frame map[string]any)

func serveHelper(testInstance *testing.T, frameHandler helperFrameHandler) http.Handler {
	testInstance.Helper()
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		connection, upgradeError := upgrader.Upgrade(responseWriter, request, nil)
		if upgradeError != nil {
			return
		}
		defer connection.Close()
		for {
			var frame map[string]any
			if readError := connection.ReadJSON(&frame); readError != nil {
				return
			}
			frameHandler(connection, frame)
		}
	})
}

func replyWith(extras map[string]any) helperFrameHandler {
	return func(connection *websocket.Conn, frame map[string]any) {
		_ = connection.WriteJSON(map[string]any{"reply_channel": frame["reply_channel"], "extras": extras})
	}
}

func websocketEndpoint(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTransport(testInstance *testing.T, endpoint string) *transport.WebSocketTransport {
	testInstance.Helper()
	configuration := transport.DefaultConfiguration()
	configuration.Endpoint = endpoint
	webSocketTransport, creationError := transport.NewWebSocketTransport(zap.NewNop(), configuration)
	require.NoError(testInstance, creationError)
	testInstance.Cleanup(func() { _ = webSocketTransport.Close() })
	return webSocketTransport
}

func testDispatch(replyChannel string) bridge.CommandDispatch {
	return bridge.CommandDispatch{
		ProcessIdentity:  testProcessIdentityConstant,
		Executable:       testExecutableConstant,
		Arguments:        []string{"-lc", "echo hi"},
		WorkingDirectory: "/home/helper",
		Background:       true,
		ReplyChannel:     replyChannel,
	}
}

func awaitReply(testInstance *testing.T, replies <-chan payload.ReplyPayload) payload.ReplyPayload {
	testInstance.Helper()
	select {
	case reply := <-replies:
		return reply
	case <-time.After(testReplyWaitConstant):
		testInstance.Fatal("no reply delivered")
		return nil
	}
}

func TestWebSocketTransportDeliversReplies(testInstance *testing.T) {
	receivedFrames := make(chan map[string]any, 1)
	server := httptest.NewServer(serveHelper(testInstance, func(connection *websocket.Conn, frame map[string]any) {
		receivedFrames <- frame
		replyWith(map[string]any{"STDOUT": "hi", "EXIT_CODE": 0})(connection, frame)
	}))
	defer server.Close()

	webSocketTransport := newTransport(testInstance, websocketEndpoint(server))
	replies := make(chan payload.ReplyPayload, 1)
	_, registrationError := webSocketTransport.RegisterReplyListener(testReplyChannelConstant, func(rawReply payload.ReplyPayload) {
		replies <- rawReply
	})
	require.NoError(testInstance, registrationError)

	require.NoError(testInstance, webSocketTransport.SendCommandRequest(context.Background(), testDispatch(testReplyChannelConstant)))

	reply := awaitReply(testInstance, replies)
	require.Equal(testInstance, "hi", reply["STDOUT"])
	require.Equal(testInstance, json.Number("0"), reply["EXIT_CODE"])

	frame := <-receivedFrames
	require.Equal(testInstance, "run_command", frame["type"])
	require.Equal(testInstance, testReplyChannelConstant, frame["reply_channel"])
	require.Equal(testInstance, testProcessIdentityConstant, frame["process"])
	require.Equal(testInstance, testExecutableConstant, frame["executable"])
	require.Equal(testInstance, []any{"-lc", "echo hi"}, frame["arguments"])
	require.Equal(testInstance, "/home/helper", frame["working_directory"])
	require.Equal(testInstance, true, frame["background"])
}

func TestWebSocketTransportDropsUnknownChannels(testInstance *testing.T) {
	server := httptest.NewServer(serveHelper(testInstance, func(connection *websocket.Conn, frame map[string]any) {
		_ = connection.WriteJSON(map[string]any{"reply_channel": "someone.else", "extras": map[string]any{"marker": "stray"}})
		replyWith(map[string]any{"marker": "expected"})(connection, frame)
	}))
	defer server.Close()

	webSocketTransport := newTransport(testInstance, websocketEndpoint(server))
	replies := make(chan payload.ReplyPayload, 2)
	_, registrationError := webSocketTransport.RegisterReplyListener(testReplyChannelConstant, func(rawReply payload.ReplyPayload) {
		replies <- rawReply
	})
	require.NoError(testInstance, registrationError)
	require.NoError(testInstance, webSocketTransport.SendCommandRequest(context.Background(), testDispatch(testReplyChannelConstant)))

	reply := awaitReply(testInstance, replies)
	require.Equal(testInstance, "expected", reply["marker"])
	select {
	case unexpectedReply := <-replies:
		testInstance.Fatalf("listener invoked twice: %v", unexpectedReply)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebSocketTransportFailsPendingListenersOnDisconnect(testInstance *testing.T) {
	server := httptest.NewServer(serveHelper(testInstance, func(connection *websocket.Conn, frame map[string]any) {
		_ = connection.Close()
	}))
	defer server.Close()

	webSocketTransport := newTransport(testInstance, websocketEndpoint(server))
	replies := make(chan payload.ReplyPayload, 1)
	_, registrationError := webSocketTransport.RegisterReplyListener(testReplyChannelConstant, func(rawReply payload.ReplyPayload) {
		replies <- rawReply
	})
	require.NoError(testInstance, registrationError)
	require.NoError(testInstance, webSocketTransport.SendCommandRequest(context.Background(), testDispatch(testReplyChannelConstant)))

	reply := awaitReply(testInstance, replies)
	errorMessage, isText := reply["errmsg"].(string)
	require.True(testInstance, isText)
	require.True(testInstance, strings.HasPrefix(errorMessage, "communication failure: connection lost"), errorMessage)
}

func TestWebSocketTransportReportsUnreachableHelper(testInstance *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := websocketEndpoint(server)
	server.Close()

	webSocketTransport := newTransport(testInstance, endpoint)
	sendError := webSocketTransport.SendCommandRequest(context.Background(), testDispatch(testReplyChannelConstant))
	require.Error(testInstance, sendError)
	require.ErrorIs(testInstance, sendError, transport.ErrHelperUnreachable)
	require.NotErrorIs(testInstance, sendError, transport.ErrPermissionDenied)
}

func TestWebSocketTransportOverUnixSocket(testInstance *testing.T) {
	socketPath := filepath.Join(testInstance.TempDir(), testSocketFileNameConstant)
	listener, listenError := net.Listen("unix", socketPath)
	require.NoError(testInstance, listenError)
	server := &http.Server{Handler: serveHelper(testInstance, replyWith(map[string]any{"RESULT_STDOUT": "unix"}))}
	go func() { _ = server.Serve(listener) }()
	defer server.Close()

	webSocketTransport := newTransport(testInstance, "unix://"+socketPath)
	replies := make(chan payload.ReplyPayload, 1)
	_, registrationError := webSocketTransport.RegisterReplyListener(testReplyChannelConstant, func(rawReply payload.ReplyPayload) {
		replies <- rawReply
	})
	require.NoError(testInstance, registrationError)
	require.NoError(testInstance, webSocketTransport.SendCommandRequest(context.Background(), testDispatch(testReplyChannelConstant)))

	require.Equal(testInstance, "unix", awaitReply(testInstance, replies)["RESULT_STDOUT"])
}

func TestWebSocketTransportServesBridge(testInstance *testing.T) {
	server := httptest.NewServer(serveHelper(testInstance, replyWith(map[string]any{
		"result": map[string]any{"RESULT_STDOUT": "bridged", "RESULT_EXIT_CODE": 0},
	})))
	defer server.Close()

	commandBridge, creationError := bridge.NewBridge(bridge.Dependencies{
		Logger:    zap.NewNop(),
		Transport: newTransport(testInstance, websocketEndpoint(server)),
	}, bridge.DefaultConfiguration())
	require.NoError(testInstance, creationError)

	outcome := commandBridge.Execute(context.Background(), bridge.CommandRequest{
		TargetProcessIdentity: testProcessIdentityConstant,
		ShellCommand:          "echo bridged",
		Timeout:               testReplyWaitConstant,
	})
	require.True(testInstance, outcome.Succeeded)
	require.Equal(testInstance, "bridged", outcome.StandardOutput)
	require.Equal(testInstance, bridge.SomeInt(0), outcome.ExitCode)
}

func TestNewWebSocketTransportRejectsUnsupportedEndpoints(testInstance *testing.T) {
	testCases := []struct {
		name     string
		endpoint string
	}{
		{name: "http_scheme", endpoint: "http://localhost:8080"},
		{name: "unix_without_path", endpoint: "unix://"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configuration := transport.DefaultConfiguration()
			configuration.Endpoint = testCase.endpoint
			webSocketTransport, creationError := transport.NewWebSocketTransport(nil, configuration)
			require.Nil(testInstance, webSocketTransport)
			require.ErrorIs(testInstance, creationError, transport.ErrUnsupportedEndpoint)
		})
	}
}

func TestWebSocketTransportRejectsDuplicateChannels(testInstance *testing.T) {
	webSocketTransport := newTransport(testInstance, "ws://127.0.0.1:1/")
	firstHandle, firstError := webSocketTransport.RegisterReplyListener(testReplyChannelConstant, func(payload.ReplyPayload) {})
	require.NoError(testInstance, firstError)

	_, duplicateError := webSocketTransport.RegisterReplyListener(testReplyChannelConstant, func(payload.ReplyPayload) {})
	require.ErrorIs(testInstance, duplicateError, transport.ErrListenerAlreadyRegistered)

	webSocketTransport.UnregisterReplyListener(firstHandle)
	_, reRegistrationError := webSocketTransport.RegisterReplyListener(testReplyChannelConstant, func(payload.ReplyPayload) {})
	require.NoError(testInstance, reRegistrationError)
}
