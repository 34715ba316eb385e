package transport

import (
	"errors"
	"sync"

	"github.com/temirov/shellbridge/internal/bridge"
)

// ErrListenerAlreadyRegistered indicates that a reply channel already has a listener.
var ErrListenerAlreadyRegistered = errors.New("reply listener already registered for channel")

type registeredListener struct {
	sequence uint64
	listener bridge.ReplyListener
}

// listenerRegistry holds one-shot reply listeners keyed by reply channel.
type listenerRegistry struct {
	mutex    sync.Mutex
	sequence uint64
	entries  map[string]registeredListener
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{entries: map[string]registeredListener{}}
}

func (registry *listenerRegistry) register(channelIdentifier string, listener bridge.ReplyListener) (bridge.ListenerHandle, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, exists := registry.entries[channelIdentifier]; exists {
		return bridge.ListenerHandle{}, ErrListenerAlreadyRegistered
	}
	registry.sequence++
	registry.entries[channelIdentifier] = registeredListener{sequence: registry.sequence, listener: listener}
	return bridge.ListenerHandle{ChannelIdentifier: channelIdentifier, Sequence: registry.sequence}, nil
}

// unregister removes the listener only when handle still identifies the current registration.
func (registry *listenerRegistry) unregister(handle bridge.ListenerHandle) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	entry, exists := registry.entries[handle.ChannelIdentifier]
	if !exists || entry.sequence != handle.Sequence {
		return
	}
	delete(registry.entries, handle.ChannelIdentifier)
}

// take removes and returns the listener for channelIdentifier.
func (registry *listenerRegistry) take(channelIdentifier string) (bridge.ReplyListener, bool) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	entry, exists := registry.entries[channelIdentifier]
	if !exists {
		return nil, false
	}
	delete(registry.entries, channelIdentifier)
	return entry.listener, true
}

// drain removes and returns every pending listener.
func (registry *listenerRegistry) drain() []bridge.ReplyListener {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	listeners := make([]bridge.ReplyListener, 0, len(registry.entries))
	for channelIdentifier, entry := range registry.entries {
		listeners = append(listeners, entry.listener)
		delete(registry.entries, channelIdentifier)
	}
	return listeners
}

func (registry *listenerRegistry) pending() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.entries)
}
