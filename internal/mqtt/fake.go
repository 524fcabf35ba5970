package mqtt

import (
	"github.com/sweeney/vent-controller/internal/logic"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// States contains all snapshots that were published.
	States []logic.Snapshot

	// StatePayloads contains the JSON payloads for published snapshots.
	StatePayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Discovery contains the discovery messages from the last PublishDiscovery.
	Discovery []DiscoveryMessage

	// PublishError, if set, will be returned by PublishState.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishState records the snapshot.
func (f *FakePublisher) PublishState(snap logic.Snapshot) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatStatePayload(snap)
	if err != nil {
		return err
	}
	f.States = append(f.States, snap)
	f.StatePayloads = append(f.StatePayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// PublishDiscovery records the discovery messages.
func (f *FakePublisher) PublishDiscovery() error {
	msgs, err := DiscoveryMessages()
	if err != nil {
		return err
	}
	f.Discovery = msgs
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// SystemEventNames returns the Event field of each recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}
