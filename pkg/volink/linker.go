package volink

import (
	"fmt"

	"go.uber.org/zap"
)

// Presenter receives display updates from the link engine. Implementations
// are invoked on the event loop goroutine and must not block.
type Presenter interface {

	// LinkStateChanged fires when devices become linked or unlinked
	LinkStateChanged(linked bool)

	// VolumeChanged fires when the master's state should be re-displayed.
	// It never means "go write this to a device"
	VolumeChanged(volume float32, muted bool)
}

// Linker mirrors one device's volume and mute state onto another. The device
// carrying the OS notification subscription is the master; the device being
// written to is the slave. All methods must be called from the event loop
// goroutine. The OS callback path re-enters through that same loop, so the
// engine state needs no locking.
type Linker struct {
	logger    *zap.SugaredLogger
	snapshot  *Snapshot
	origin    string
	presenter Presenter
	onFatal   func(error)

	bridge *volumeBridge

	linked      bool
	masterIndex int
	slaveIndex  int

	masterSession VolumeSession
	slaveSession  VolumeSession

	fatalSignalled bool
}

// NewLinker creates an unlinked engine over the given device snapshot.
// origin is the correlation token stamped on every write this process makes,
// and onFatal is invoked (at most once) when a propagation failure makes the
// link unsalvageable.
func NewLinker(logger *zap.SugaredLogger,
	snapshot *Snapshot,
	post func(func()),
	origin string,
	presenter Presenter,
	onFatal func(error)) *Linker {

	logger = logger.Named("linker")

	lk := &Linker{
		logger:      logger,
		snapshot:    snapshot,
		origin:      origin,
		presenter:   presenter,
		onFatal:     onFatal,
		masterIndex: -1,
		slaveIndex:  -1,
	}

	lk.bridge = newVolumeBridge(logger, post, lk.handleVolumeEvent)

	logger.Debugw("Created linker instance", "origin", origin)

	return lk
}

// Link connects the devices at the given snapshot ordinals, breaking any
// existing link first. On success the slave already carries the master's
// current state, and every later master change follows automatically. On
// failure the engine is left unlinked.
func (lk *Linker) Link(masterIndex, slaveIndex int) error {
	lk.Unlink()

	if masterIndex == slaveIndex {
		return fmt.Errorf("%w (index %d)", ErrSelfLink, masterIndex)
	}

	master, err := lk.snapshot.At(masterIndex)
	if err != nil {
		return fmt.Errorf("resolve master device: %w", err)
	}

	slave, err := lk.snapshot.At(slaveIndex)
	if err != nil {
		return fmt.Errorf("resolve slave device: %w", err)
	}

	lk.logger.Infow("Linking devices", "master", master.Name(), "slave", slave.Name())

	masterSession, err := master.OpenSession()
	if err != nil {
		lk.logger.Warnw("Failed to open master session", "device", master.Name(), "error", err)
		return fmt.Errorf("%w (master %q): %v", ErrActivation, master.Name(), err)
	}

	slaveSession, err := slave.OpenSession()
	if err != nil {
		lk.logger.Warnw("Failed to open slave session", "device", slave.Name(), "error", err)
		lk.closeSession(masterSession)
		return fmt.Errorf("%w (slave %q): %v", ErrActivation, slave.Name(), err)
	}

	if err := lk.bridge.attach(masterSession); err != nil {
		lk.closeSession(masterSession)
		lk.closeSession(slaveSession)
		return err
	}

	// the subscription is live from here on, so the pair counts as linked
	// before the initial sync runs. Notifications racing that sync are
	// queued behind this task and see consistent state
	lk.linked = true
	lk.masterIndex = masterIndex
	lk.slaveIndex = slaveIndex
	lk.masterSession = masterSession
	lk.slaveSession = slaveSession

	muted, err := masterSession.Mute()
	if err != nil {
		lk.Unlink()
		return fmt.Errorf("%w: read master mute: %v", ErrSync, err)
	}

	volume, err := masterSession.Volume()
	if err != nil {
		lk.Unlink()
		return fmt.Errorf("%w: read master volume: %v", ErrSync, err)
	}

	if err := lk.writeSlave(volume, muted); err != nil {
		lk.Unlink()
		return fmt.Errorf("%w: %v", ErrSync, err)
	}

	lk.presenter.VolumeChanged(volume, muted)
	lk.presenter.LinkStateChanged(true)

	lk.logger.Infow("Devices linked", "volume", volume, "muted", muted)

	return nil
}

// Unlink breaks the current link, if any. Always succeeds; unlinking when
// nothing is linked does nothing. Safe to call mid-notification.
func (lk *Linker) Unlink() {
	wasLinked := lk.linked

	lk.bridge.detach()

	if lk.masterSession != nil {
		lk.closeSession(lk.masterSession)
		lk.masterSession = nil
	}

	if lk.slaveSession != nil {
		lk.closeSession(lk.slaveSession)
		lk.slaveSession = nil
	}

	lk.linked = false
	lk.masterIndex = -1
	lk.slaveIndex = -1

	if wasLinked {
		lk.logger.Info("Devices unlinked")
		lk.presenter.LinkStateChanged(false)
	}
}

// SetMasterVolume asks the master device to change its volume. The slave is
// not written here; it follows through the notification path once the OS
// confirms the change. Succeeds trivially when nothing is linked.
func (lk *Linker) SetMasterVolume(level float32) error {
	if lk.masterSession == nil {
		return nil
	}

	if err := lk.masterSession.SetVolume(level, lk.origin); err != nil {
		lk.logger.Warnw("Failed to set master volume", "level", level, "error", err)
		return fmt.Errorf("%w: set master volume: %v", ErrWrite, err)
	}

	return nil
}

// SetMasterMute asks the master device to change its mute state. Same
// propagation rules as SetMasterVolume.
func (lk *Linker) SetMasterMute(muted bool) error {
	if lk.masterSession == nil {
		return nil
	}

	if err := lk.masterSession.SetMute(muted, lk.origin); err != nil {
		lk.logger.Warnw("Failed to set master mute", "muted", muted, "error", err)
		return fmt.Errorf("%w: set master mute: %v", ErrWrite, err)
	}

	return nil
}

// Linked returns whether a device pair is currently linked
func (lk *Linker) Linked() bool {
	return lk.linked
}

// MasterIndex returns the linked master's snapshot ordinal, or -1 when unlinked
func (lk *Linker) MasterIndex() int {
	return lk.masterIndex
}

// SlaveIndex returns the linked slave's snapshot ordinal, or -1 when unlinked
func (lk *Linker) SlaveIndex() int {
	return lk.slaveIndex
}

// Snapshot returns the device snapshot the engine's ordinals refer to
func (lk *Linker) Snapshot() *Snapshot {
	return lk.snapshot
}

// handleVolumeEvent receives every master change notification, one at a
// time, on the event loop goroutine
func (lk *Linker) handleVolumeEvent(event VolumeEvent) {
	// a stale notification can trail in right after an unlink
	if !lk.linked || lk.slaveSession == nil {
		return
	}

	// our own writes already updated the display on the way out; changes
	// made by anyone else (OS mixer, hotkeys, other apps) get reflected here
	if event.Origin != lk.origin {
		lk.presenter.VolumeChanged(event.Volume, event.Muted)
	}

	// the slave follows no matter who caused the change
	if err := lk.writeSlave(event.Volume, event.Muted); err != nil {
		lk.logger.Errorw("Failed to propagate master state to slave, breaking link", "error", err)

		lk.Unlink()
		lk.fatal(fmt.Errorf("%w: %v", ErrSync, err))
	}
}

func (lk *Linker) writeSlave(volume float32, muted bool) error {
	if err := lk.slaveSession.SetVolume(volume, lk.origin); err != nil {
		return fmt.Errorf("set slave volume: %w", err)
	}

	if err := lk.slaveSession.SetMute(muted, lk.origin); err != nil {
		return fmt.Errorf("set slave mute: %w", err)
	}

	return nil
}

func (lk *Linker) closeSession(session VolumeSession) {
	if err := session.Close(); err != nil {
		lk.logger.Warnw("Failed to close volume session", "error", err)
	}
}

// fatal reports an unsalvageable propagation failure upstream, once. Repeat
// failures after the first are logged by the caller but not re-signalled
func (lk *Linker) fatal(err error) {
	if lk.fatalSignalled {
		return
	}

	lk.fatalSignalled = true

	if lk.onFatal != nil {
		lk.onFatal(err)
	}
}
