package volink

import (
	"fmt"

	"fyne.io/systray"
	"go.uber.org/zap"

	"github.com/MixyLabs/volink/pkg/volink/util"
)

// deviceSelection identifies a click on one of the device submenus
type deviceSelection struct {
	master bool
	index  int
}

// tray is the systray frontend. It implements Presenter, and all of its
// state (including the cached master volume used for stepping) is only
// touched from event loop tasks, so it needs no locking
type tray struct {
	v      *Volink
	logger *zap.SugaredLogger
	flyout *audioFlyout

	status     *systray.MenuItem
	volumeInfo *systray.MenuItem
	linkToggle *systray.MenuItem
	muteToggle *systray.MenuItem

	masterItems []*systray.MenuItem
	slaveItems  []*systray.MenuItem

	lastVolume float32
	lastMuted  bool
	haveVolume bool
}

func (v *Volink) initializeTray(onDone func()) {
	logger := v.logger.Named("tray")

	onReady := func() {
		logger.Debug("Tray instance ready")

		systray.SetTemplateIcon(iconUnlinkedData, iconUnlinkedData)
		systray.SetTitle("volink")
		systray.SetTooltip("volink")

		t := &tray{
			v:      v,
			logger: logger,
			flyout: newAudioFlyout(logger),
		}

		t.status = systray.AddMenuItem("Not linked", "")
		t.status.Disable()

		t.volumeInfo = systray.AddMenuItem("Volume: --", "")
		t.volumeInfo.Disable()

		systray.AddSeparator()

		masterMenu := systray.AddMenuItem("Master device", "Device whose volume is followed")
		slaveMenu := systray.AddMenuItem("Slave device", "Device that follows the master")

		for index := 0; index < v.snapshot.Count(); index++ {
			name := v.snapshot.Names()[index]
			t.masterItems = append(t.masterItems, masterMenu.AddSubMenuItemCheckbox(name, "", false))
			t.slaveItems = append(t.slaveItems, slaveMenu.AddSubMenuItemCheckbox(name, "", false))
		}

		t.linkToggle = systray.AddMenuItem("Link devices", "Start mirroring the master's volume")
		t.muteToggle = systray.AddMenuItemCheckbox("Muted", "Toggle mute on the linked pair", false)

		systray.AddSeparator()
		volumeUp := systray.AddMenuItem("Volume up", "Raise the linked volume")
		volumeDown := systray.AddMenuItem("Volume down", "Lower the linked volume")

		systray.AddSeparator()
		editConfig := systray.AddMenuItem("Edit configuration", "Open config file with notepad")

		if v.version != "" {
			systray.AddSeparator()
			versionInfo := systray.AddMenuItem(v.version, "")
			versionInfo.Disable()
		}

		systray.AddSeparator()
		quit := systray.AddMenuItem("Quit", "Stop volink and quit")

		v.tray = t

		// submenu items only expose individual click channels, so each gets
		// a forwarder onto one shared selection channel
		selections := make(chan deviceSelection)

		for index, item := range t.masterItems {
			go forwardClicks(item, selections, deviceSelection{master: true, index: index})
		}

		for index, item := range t.slaveItems {
			go forwardClicks(item, selections, deviceSelection{master: false, index: index})
		}

		go func() {
			for {
				select {
				case <-quit.ClickedCh:
					logger.Info("Quit menu item clicked, stopping")

					v.signalStop()

				case <-editConfig.ClickedCh:
					logger.Info("Edit config menu item clicked, opening config for editing")

					// TODO: make editor configurable
					editor := "notepad.exe"
					if util.Linux() {
						editor = "gedit"
					}

					if err := util.OpenExternal(logger, editor, userConfigFilepath); err != nil {
						logger.Warnw("Failed to open config file for editing", "error", err)
					}

				case <-t.linkToggle.ClickedCh:
					logger.Info("Link toggle menu item clicked")

					v.post(v.toggleLink)

				case <-t.muteToggle.ClickedCh:
					logger.Debug("Mute toggle menu item clicked")

					v.post(t.handleMuteToggle)

				case <-volumeUp.ClickedCh:
					logger.Debug("Volume up menu item clicked")

					v.post(func() { t.handleVolumeStep(1) })

				case <-volumeDown.ClickedCh:
					logger.Debug("Volume down menu item clicked")

					v.post(func() { t.handleVolumeStep(-1) })

				case selection := <-selections:
					logger.Debugw("Device menu item clicked",
						"master", selection.master, "index", selection.index)

					v.post(func() {
						v.selectDevice(selection.master, selection.index)
						t.refreshSelection()
					})
				}
			}
		}()

		onDone()
	}

	onExit := func() {
		logger.Debug("Tray exited")
	}

	logger.Debug("Running in tray")
	systray.Run(onReady, onExit)
}

func (v *Volink) stopTray() {
	v.logger.Debug("Quitting tray")
	systray.Quit()
}

func forwardClicks(item *systray.MenuItem, selections chan<- deviceSelection, selection deviceSelection) {
	for range item.ClickedCh {
		selections <- selection
	}
}

// refreshSelection re-checks the device submenus against the current
// selection. Runs on the event loop
func (t *tray) refreshSelection() {
	for index, item := range t.masterItems {
		setChecked(item, index == t.v.selectedMaster)
	}

	for index, item := range t.slaveItems {
		setChecked(item, index == t.v.selectedSlave)
	}
}

func setChecked(item *systray.MenuItem, checked bool) {
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

// LinkStateChanged implements Presenter. Runs on the event loop
func (t *tray) LinkStateChanged(linked bool) {
	if !linked {
		systray.SetTemplateIcon(iconUnlinkedData, iconUnlinkedData)
		t.status.SetTitle("Not linked")
		t.linkToggle.SetTitle("Link devices")
		t.volumeInfo.SetTitle("Volume: --")
		t.muteToggle.Uncheck()

		t.haveVolume = false
		t.lastMuted = false

		return
	}

	names := t.v.linker.Snapshot().Names()
	masterName := names[t.v.linker.MasterIndex()]
	slaveName := names[t.v.linker.SlaveIndex()]

	systray.SetTemplateIcon(iconLinkedData, iconLinkedData)
	t.status.SetTitle(fmt.Sprintf("Linked: %s -> %s", masterName, slaveName))
	t.linkToggle.SetTitle("Unlink devices")
}

// VolumeChanged implements Presenter. Runs on the event loop
func (t *tray) VolumeChanged(volume float32, muted bool) {
	t.lastVolume = volume
	t.lastMuted = muted
	t.haveVolume = true

	t.volumeInfo.SetTitle(fmt.Sprintf("Volume: %d%%", int(volume*100+0.5)))
	setChecked(t.muteToggle, muted)
}

// handleVolumeStep moves the master volume one configured step up or down.
// The write comes back to us as a self-origin notification that skips the
// presenter, so the cached display state is updated here instead. Runs on
// the event loop
func (t *tray) handleVolumeStep(direction int) {
	if !t.v.linker.Linked() || !t.haveVolume {
		t.logger.Debug("Ignoring volume step while unlinked")
		return
	}

	step := float32(t.v.currConf().VolumeStep) / 100.0
	target := util.Clamp01(t.lastVolume + step*float32(direction))

	if err := t.v.linker.SetMasterVolume(target); err != nil {
		t.logger.Warnw("Failed to step master volume", "error", err)
		return
	}

	t.VolumeChanged(target, t.lastMuted)

	// stepping to zero mutes, and any step to a nonzero level unmutes
	if target == 0 && !t.lastMuted {
		t.setMute(true)
	} else if t.lastMuted && target > 0 {
		t.setMute(false)
	}

	if t.v.currConf().AudioFlyout {
		t.flyout.maybeShow()
	}
}

// handleMuteToggle flips the master's mute state. Runs on the event loop
func (t *tray) handleMuteToggle() {
	if !t.v.linker.Linked() || !t.haveVolume {
		t.logger.Debug("Ignoring mute toggle while unlinked")

		t.muteToggle.Uncheck()
		return
	}

	t.setMute(!t.lastMuted)

	if t.v.currConf().AudioFlyout {
		t.flyout.maybeShow()
	}
}

func (t *tray) setMute(muted bool) {
	if err := t.v.linker.SetMasterMute(muted); err != nil {
		t.logger.Warnw("Failed to set master mute", "error", err, "muted", muted)
		return
	}

	t.lastMuted = muted
	setChecked(t.muteToggle, muted)
}
