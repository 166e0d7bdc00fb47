// Package volink pairs two audio output devices so that one (the slave)
// always follows the other's (the master's) volume and mute state.
package volink

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MixyLabs/volink/pkg/volink/util"
)

const instanceMutexName = "MixyLabs.Volink"

// Volink is the main entity managing all subcomponents
type Volink struct {
	logger    *zap.SugaredLogger
	notifier  Notifier
	configMan *ConfigManager

	loop     *eventLoop
	finder   DeviceFinder
	snapshot *Snapshot
	linker   *Linker
	tray     *tray

	// correlation token stamped on every device write this process makes
	origin string

	selectedMaster int
	selectedSlave  int
	saveChanges    bool

	runningWithTray bool
	stopChannel     chan bool
	exitCode        int
	version         string
	verbose         bool
	forceLink       bool
}

func NewVolink(logger *zap.SugaredLogger, verbose bool) (*Volink, error) {
	logger = logger.Named("volink")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	v := &Volink{
		logger:         logger,
		notifier:       notifier,
		configMan:      config,
		loop:           newEventLoop(logger),
		origin:         newOriginToken(),
		selectedMaster: -1,
		selectedSlave:  -1,
		stopChannel:    make(chan bool),
		verbose:        verbose,
	}

	logger.Debugw("Created volink instance", "origin", v.origin)

	return v, nil
}

// newOriginToken mints this process's correlation token. Braced uppercase
// GUID form, since on Windows it rides through COM event contexts and comes
// back stringified that way
func newOriginToken() string {
	return fmt.Sprintf("{%s}", strings.ToUpper(uuid.NewString()))
}

func (v *Volink) currConf() *Config {
	return &v.configMan.current
}

// Initialize sets up components and starts to run in the background
func (v *Volink) Initialize() error {
	v.logger.Debug("Initializing")

	if err := util.CreateMutex(instanceMutexName); err != nil {
		v.logger.Warnw("Failed to acquire instance mutex", "error", err)
		v.notifier.Notify("volink is already running!", "Only one instance can run at a time.")
		return fmt.Errorf("acquire instance mutex: %w", err)
	}

	// load the config for the first time
	if err := v.configMan.Load(); err != nil {
		v.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	finder, err := newDeviceFinder(v.logger)
	if err != nil {
		v.logger.Errorw("Failed to create DeviceFinder", "error", err)
		v.notifier.Notify("Can't access audio devices!", "Please check volink's logs for more details.")
		return fmt.Errorf("create new DeviceFinder: %w", err)
	}
	v.finder = finder

	endpoints, err := v.finder.Enumerate()
	if err != nil {
		v.logger.Errorw("Failed to enumerate audio devices", "error", err)
		v.notifier.Notify("Can't enumerate audio devices!", "Please check volink's logs for more details.")
		return fmt.Errorf("enumerate audio devices: %w", err)
	}

	snapshot, err := newSnapshot(v.logger, endpoints, v.currConf().SortLocale)
	if err != nil {
		v.logger.Errorw("Failed to build device snapshot", "error", err)
		v.notifier.Notify("No audio devices found!", "volink needs at least one active output device.")
		return fmt.Errorf("build device snapshot: %w", err)
	}
	v.snapshot = snapshot

	v.linker = NewLinker(v.logger, snapshot, v.post, v.origin, v, v.onFatalSyncFailure)

	v.loop.start()
	v.setupInterruptHandler()

	if v.currConf().DisableTray {
		v.logger.Debugw("Running without tray icon", "reason", "disabled in config")

		// run in main thread while waiting on ctrl+C
		v.run()
	} else {
		v.runningWithTray = true
		v.initializeTray(v.run)
	}

	return nil
}

// SetVersion causes volink to add a version string to its tray menu if called before Initialize
func (v *Volink) SetVersion(version string) {
	v.version = version
}

// SetForceLink makes startup re-link the saved device pair even if it was
// unlinked on last exit. Must be called before Initialize
func (v *Volink) SetForceLink(forceLink bool) {
	v.forceLink = forceLink
}

// Verbose returns a boolean indicating whether volink is running in verbose mode
func (v *Volink) Verbose() bool {
	return v.verbose
}

// post queues work on the event loop with the crashlog handler armed
func (v *Volink) post(task func()) {
	v.loop.post(func() {
		defer v.recoverFromPanic()
		task()
	})
}

// LinkStateChanged implements Presenter, forwarding to the tray when present
func (v *Volink) LinkStateChanged(linked bool) {
	if v.tray != nil {
		v.tray.LinkStateChanged(linked)
	}
}

// VolumeChanged implements Presenter, forwarding to the tray when present
func (v *Volink) VolumeChanged(volume float32, muted bool) {
	if v.tray != nil {
		v.tray.VolumeChanged(volume, muted)
	}
}

func (v *Volink) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		v.logger.Debugw("Interrupted", "signal", signal)
		v.signalStop()
	}()
}

func (v *Volink) run() {
	v.logger.Info("Run loop starting")

	go v.configMan.WatchConfigFileChanges()
	go v.watchConfigReloads()

	v.post(v.restoreSavedLink)

	// wait until gracefully stopped
	<-v.stopChannel
	v.logger.Debug("Stop channel signaled, terminating")

	if err := v.stop(); err != nil {
		v.logger.Warnw("Failed to stop volink", "error", err)
		os.Exit(1)
	} else {
		os.Exit(v.exitCode)
	}
}

func (v *Volink) watchConfigReloads() {
	reloads := v.configMan.SubscribeToChanges()

	for range reloads {
		v.logger.Info("Config reloaded; device sorting and tray changes take effect on next launch")
	}
}

// restoreSavedLink re-applies the device pairing stored by the previous run.
// Failures are logged and forgotten - a missing device just means the saved
// pairing doesn't apply anymore
func (v *Volink) restoreSavedLink() {
	state := v.configMan.SavedLinkState()

	if state.MasterDevice != "" {
		if index := v.snapshot.IndexOf(state.MasterDevice); index >= 0 {
			v.selectedMaster = index
		} else {
			v.logger.Debugw("Saved master device not present", "deviceID", state.MasterDevice)
		}
	}

	if state.SlaveDevice != "" {
		if index := v.snapshot.IndexOf(state.SlaveDevice); index >= 0 {
			v.selectedSlave = index
		} else {
			v.logger.Debugw("Saved slave device not present", "deviceID", state.SlaveDevice)
		}
	}

	if v.tray != nil {
		v.tray.refreshSelection()
	}

	shouldLink := state.LinkActive || v.forceLink || v.currConf().ForceLink

	if shouldLink && v.selectedMaster >= 0 && v.selectedSlave >= 0 {
		if err := v.linker.Link(v.selectedMaster, v.selectedSlave); err != nil {
			v.logger.Warnw("Failed to restore saved link", "error", err)
		}
	}
}

// selectDevice updates one side of the device selection. Changing devices
// while linked breaks the link first; the user re-links explicitly. Runs on
// the event loop
func (v *Volink) selectDevice(master bool, index int) {
	v.saveChanges = true

	if v.linker.Linked() {
		v.linker.Unlink()
	}

	if master {
		v.selectedMaster = index
	} else {
		v.selectedSlave = index
	}

	v.logger.Debugw("Device selection changed", "master", master, "index", index)
}

// toggleLink links the selected pair, or breaks the current link if one is
// active. Runs on the event loop
func (v *Volink) toggleLink() {
	v.saveChanges = true

	if v.linker.Linked() {
		v.linker.Unlink()
		return
	}

	if v.selectedMaster < 0 || v.selectedSlave < 0 {
		v.logger.Debug("Link toggled with incomplete device selection")

		if v.currConf().Notifications {
			v.notifier.Notify("Select both devices first!", "Pick a master and a slave device from the tray menu.")
		}

		return
	}

	if err := v.linker.Link(v.selectedMaster, v.selectedSlave); err != nil {
		v.logger.Warnw("Failed to link devices", "error", err)

		if v.currConf().Notifications {
			v.notifier.Notify("Linking failed!", linkErrorMessage(err))
		}
	}
}

// linkErrorMessage maps a link failure to something worth putting in a toast
func linkErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrSelfLink):
		return "Master and slave must be different devices."
	case errors.Is(err, ErrInvalidIndex):
		return "One of the selected devices is no longer available."
	case errors.Is(err, ErrActivation):
		return "One of the devices refused to open a volume session."
	case errors.Is(err, ErrSubscription):
		return "Couldn't subscribe to the master device's changes."
	case errors.Is(err, ErrSync):
		return "Couldn't copy the master's state to the slave."
	}

	return "Please check volink's logs for more details."
}

// onFatalSyncFailure handles the one failure volink can't work around: the
// slave stopped accepting writes mid-link. The link is already broken by the
// time this runs; what's left is telling the user and exiting non-zero
func (v *Volink) onFatalSyncFailure(err error) {
	v.logger.Errorw("Fatal sync failure, shutting down", "error", err)

	v.exitCode = 1

	v.notifier.Notify("Volume link broken!",
		"volink can no longer control the slave device and will now exit.")

	// the modal notice blocks, so it gets its own goroutine; shutdown does
	// not wait for it to be dismissed
	go util.FatalNotice("volink - fatal error",
		"Failed to propagate a volume change to the slave device. volink will now exit.")

	v.signalStop()
}

// persistLinkState saves the current pairing, but only if the user actually
// changed something this run. Runs on the event loop
func (v *Volink) persistLinkState() {
	if !v.saveChanges {
		return
	}

	state := LinkState{LinkActive: v.linker.Linked()}

	if endpoint, err := v.snapshot.At(v.selectedMaster); err == nil {
		state.MasterDevice = endpoint.ID()
	}

	if endpoint, err := v.snapshot.At(v.selectedSlave); err == nil {
		state.SlaveDevice = endpoint.ID()
	}

	if err := v.configMan.StoreLinkState(state); err != nil {
		v.logger.Warnw("Failed to persist link state", "error", err)
		return
	}

	v.saveChanges = false
}

func (v *Volink) signalStop() {
	v.logger.Debug("Signalling stop channel")
	v.stopChannel <- true
}

func (v *Volink) stop() error {
	v.logger.Info("Stopping")

	v.configMan.StopWatchingConfigFile()

	// wind down on the loop: persist user changes, then break the link
	v.loop.post(func() {
		v.persistLinkState()
		v.linker.Unlink()
	})
	v.loop.sync()
	v.loop.stop()

	if err := v.finder.Release(); err != nil {
		v.logger.Errorw("Failed to release device finder", "error", err)
		return fmt.Errorf("release device finder: %w", err)
	}

	if v.runningWithTray {
		v.stopTray()
	}

	// attempt to sync on exit - this won't necessarily work but can't harm
	_ = v.logger.Sync()

	return nil
}
