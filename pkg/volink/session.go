package volink

// VolumeEvent describes a single change to a device's volume state, as
// reported by the OS notification stream. Origin carries the correlation
// token of the writer that caused the change. Changes made by other
// applications (or by the user through OS controls) carry a foreign or
// empty token.
type VolumeEvent struct {
	Volume float32
	Muted  bool
	Origin string
}

// Subscription is an active registration on a session's notification stream.
// Closing it stops delivery; closing more than once is harmless.
type Subscription interface {
	Close() error
}

// VolumeSession is an open volume control session on a single audio device.
// Writes accept an origin token that the OS echoes back through the
// notification stream, which lets subscribers tell their own writes apart
// from everyone else's. An empty origin means "don't care".
type VolumeSession interface {

	// Volume returns the current master volume as a scalar in [0.0, 1.0]
	Volume() (float32, error)

	// SetVolume sets the master volume to a scalar in [0.0, 1.0]
	SetVolume(level float32, origin string) error

	// Mute returns the current mute state
	Mute() (bool, error)

	// SetMute sets the mute state without touching the volume level
	SetMute(muted bool, origin string) error

	// Subscribe registers a handler for every subsequent change to this
	// device's volume or mute state. Delivery order matches the order the
	// OS reported the changes in. The handler may be invoked from an OS
	// callback thread and must not block
	Subscribe(handler func(VolumeEvent)) (Subscription, error)

	// Close releases the session. Subscriptions must be closed first
	Close() error
}
