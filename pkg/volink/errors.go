package volink

import "errors"

// Failure classes surfaced by device discovery and the link engine.
// These are returned wrapped with context about the underlying OS error,
// so callers should match them with errors.Is.
var (
	// ErrEnumeration means the device finder couldn't produce a device list at all
	ErrEnumeration = errors.New("failed to enumerate audio devices")

	// ErrNoDevices means enumeration technically succeeded but came back empty
	ErrNoDevices = errors.New("no active audio output devices")

	// ErrInvalidIndex means a device ordinal fell outside the current snapshot
	ErrInvalidIndex = errors.New("device index out of range")

	// ErrSelfLink means a link was requested between a device and itself
	ErrSelfLink = errors.New("master and slave must be different devices")

	// ErrActivation means a device refused to open a volume session
	ErrActivation = errors.New("failed to open volume session")

	// ErrSubscription means the master's change notifications couldn't be registered
	ErrSubscription = errors.New("failed to subscribe to volume changes")

	// ErrSync means the initial master-to-slave state mirror failed after linking,
	// or an ongoing propagation failed and tore the link down
	ErrSync = errors.New("failed to mirror master state to slave")

	// ErrWrite means a direct volume or mute write to a device failed
	ErrWrite = errors.New("failed to write device volume state")
)
