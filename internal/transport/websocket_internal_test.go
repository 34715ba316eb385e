package transport

import (
	"errors"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/shellbridge/internal/bridge"
	"github.com/temirov/shellbridge/internal/payload"
)

func TestClassifyDialError(testInstance *testing.T) {
	testCases := []struct {
		name     string
		failure  error
		expected error
	}{
		{
			name:     "access_denied",
			failure:  &net.OpError{Op: "dial", Net: "unix", Err: os.NewSyscallError("connect", syscall.EACCES)},
			expected: ErrPermissionDenied,
		},
		{
			name:     "operation_not_permitted",
			failure:  &net.OpError{Op: "dial", Net: "unix", Err: os.NewSyscallError("connect", syscall.EPERM)},
			expected: ErrPermissionDenied,
		},
		{
			name:     "connection_refused",
			failure:  &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)},
			expected: ErrHelperUnreachable,
		},
		{
			name:     "generic",
			failure:  errors.New("bad handshake"),
			expected: ErrHelperUnreachable,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, classifyDialError(testCase.failure))
		})
	}
}

func TestListenerRegistryIgnoresStaleHandles(testInstance *testing.T) {
	registry := newListenerRegistry()
	noopListener := bridge.ReplyListener(func(payload.ReplyPayload) {})

	staleHandle, registrationError := registry.register("channel", noopListener)
	require.NoError(testInstance, registrationError)
	_, taken := registry.take("channel")
	require.True(testInstance, taken)

	_, registrationError = registry.register("channel", noopListener)
	require.NoError(testInstance, registrationError)
	registry.unregister(staleHandle)
	require.Equal(testInstance, 1, registry.pending())

	require.Len(testInstance, registry.drain(), 1)
	require.Equal(testInstance, 0, registry.pending())
}
