package volink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBridge_ForwardsEventsInOrder verifies that notifications come out of
// the bridge in the order the session delivered them.
func TestBridge_ForwardsEventsInOrder(t *testing.T) {
	var received []float32

	bridge := newVolumeBridge(newTestLogger(), func(task func()) { task() }, func(event VolumeEvent) {
		received = append(received, event.Volume)
	})

	session := &fakeSession{}
	require.NoError(t, bridge.attach(session))

	session.emit(VolumeEvent{Volume: 0.1})
	session.emit(VolumeEvent{Volume: 0.2})
	session.emit(VolumeEvent{Volume: 0.3})

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, received)
}

// TestBridge_HandlerPanicIsContained verifies that:
//
//	Given a handler that panics on a particular event,
//	When that event arrives,
//	Then the panic doesn't escape the bridge and later events are
//	still delivered.
func TestBridge_HandlerPanicIsContained(t *testing.T) {
	var received []float32

	bridge := newVolumeBridge(newTestLogger(), func(task func()) { task() }, func(event VolumeEvent) {
		if event.Volume == 0.2 {
			panic("handler bug")
		}
		received = append(received, event.Volume)
	})

	session := &fakeSession{}
	require.NoError(t, bridge.attach(session))

	session.emit(VolumeEvent{Volume: 0.1})
	session.emit(VolumeEvent{Volume: 0.2})
	session.emit(VolumeEvent{Volume: 0.3})

	assert.Equal(t, []float32{0.1, 0.3}, received, "events around the panic should still arrive")
}

// TestBridge_AttachReplacesPreviousSubscription verifies that attaching to a
// new session closes the previous subscription first.
func TestBridge_AttachReplacesPreviousSubscription(t *testing.T) {
	bridge := newVolumeBridge(newTestLogger(), func(task func()) { task() }, func(VolumeEvent) {})

	first := &fakeSession{}
	second := &fakeSession{}

	require.NoError(t, bridge.attach(first))
	require.NoError(t, bridge.attach(second))

	assert.False(t, first.subscribed, "first subscription should be closed")
	assert.True(t, second.subscribed)
	assert.True(t, bridge.attached())
}

// TestBridge_DetachIsIdempotent verifies that detach closes the subscription
// once and tolerates being called again.
func TestBridge_DetachIsIdempotent(t *testing.T) {
	bridge := newVolumeBridge(newTestLogger(), func(task func()) { task() }, func(VolumeEvent) {})

	session := &fakeSession{}
	require.NoError(t, bridge.attach(session))

	bridge.detach()
	bridge.detach()

	assert.False(t, bridge.attached())
	assert.Equal(t, 1, session.subCloses, "subscription should be closed exactly once")
}

// TestBridge_SubscribeFailure verifies that a session refusing to subscribe
// surfaces as ErrSubscription and leaves the bridge detached.
func TestBridge_SubscribeFailure(t *testing.T) {
	bridge := newVolumeBridge(newTestLogger(), func(task func()) { task() }, func(VolumeEvent) {})

	session := &fakeSession{subscribeErr: errors.New("not supported")}

	err := bridge.attach(session)
	require.ErrorIs(t, err, ErrSubscription)
	assert.False(t, bridge.attached())
}
