package volink

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appFixture wires a Volink without any OS-facing pieces: fake devices, a
// recording notifier, a real config layer in a per-test directory, and a
// synchronous post so everything runs inline
type appFixture struct {
	t *testing.T

	v         *Volink
	endpoints []*fakeEndpoint
	notifier  *fakeNotifier
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()
	t.Chdir(t.TempDir())

	logger := newTestLogger()
	notifier := &fakeNotifier{}

	config, err := NewConfig(logger, notifier)
	require.NoError(t, err)
	require.NoError(t, config.Load())

	fix := &appFixture{
		t:        t,
		notifier: notifier,
	}

	fix.endpoints = []*fakeEndpoint{
		{id: "dev-speakers", name: "Desk Speakers", volume: 0.62},
		{id: "dev-headphones", name: "Headphones", volume: 0.25},
		{id: "dev-dac", name: "USB DAC", volume: 0.5, muted: true},
	}

	endpoints := make([]Endpoint, len(fix.endpoints))
	for i, endpoint := range fix.endpoints {
		endpoints[i] = endpoint
	}

	snapshot, err := newSnapshot(logger, endpoints, "")
	require.NoError(t, err)

	fix.v = &Volink{
		logger:         logger,
		notifier:       notifier,
		configMan:      config,
		loop:           newEventLoop(logger),
		origin:         newOriginToken(),
		selectedMaster: -1,
		selectedSlave:  -1,
		stopChannel:    make(chan bool, 1),
	}
	fix.v.snapshot = snapshot

	synchronousPost := func(task func()) { task() }
	fix.v.linker = NewLinker(logger, snapshot, synchronousPost, fix.v.origin, fix.v, nil)

	return fix
}

func (fix *appFixture) selectPair(masterID, slaveID string) {
	fix.t.Helper()

	fix.v.selectDevice(true, fix.v.snapshot.IndexOf(masterID))
	fix.v.selectDevice(false, fix.v.snapshot.IndexOf(slaveID))
}

// TestOriginToken_BracedGUIDForm verifies the correlation token is an
// uppercase braced GUID, the form COM event contexts stringify to.
func TestOriginToken_BracedGUIDForm(t *testing.T) {
	token := newOriginToken()

	require.True(t, strings.HasPrefix(token, "{"))
	require.True(t, strings.HasSuffix(token, "}"))
	assert.Equal(t, strings.ToUpper(token), token)

	_, err := uuid.Parse(strings.Trim(token, "{}"))
	assert.NoError(t, err, "token should contain a parseable UUID")
}

// TestToggleLink_LinksSelectedPair verifies that toggling with a complete
// selection links it and marks the settings dirty.
func TestToggleLink_LinksSelectedPair(t *testing.T) {
	fix := newAppFixture(t)
	fix.selectPair("dev-speakers", "dev-headphones")

	fix.v.toggleLink()

	assert.True(t, fix.v.linker.Linked())
	assert.True(t, fix.v.saveChanges)
	assert.Empty(t, fix.notifier.titles, "a successful link shouldn't toast")
}

// TestToggleLink_WhenLinkedUnlinks verifies the toggle breaks an active link.
func TestToggleLink_WhenLinkedUnlinks(t *testing.T) {
	fix := newAppFixture(t)
	fix.selectPair("dev-speakers", "dev-headphones")
	fix.v.toggleLink()
	require.True(t, fix.v.linker.Linked())

	fix.v.toggleLink()

	assert.False(t, fix.v.linker.Linked())
}

// TestToggleLink_IncompleteSelectionNotifies verifies that toggling without
// both devices selected pops a toast instead of trying to link.
func TestToggleLink_IncompleteSelectionNotifies(t *testing.T) {
	fix := newAppFixture(t)
	fix.v.selectDevice(true, fix.v.snapshot.IndexOf("dev-speakers"))

	fix.v.toggleLink()

	assert.False(t, fix.v.linker.Linked())
	require.NotEmpty(t, fix.notifier.titles)
	assert.Equal(t, "Select both devices first!", fix.notifier.titles[0])
}

// TestToggleLink_FailureNotifiesWithReason verifies that a failed link
// surfaces a human-readable cause.
func TestToggleLink_FailureNotifiesWithReason(t *testing.T) {
	fix := newAppFixture(t)
	index := fix.v.snapshot.IndexOf("dev-speakers")
	fix.v.selectDevice(true, index)
	fix.v.selectDevice(false, index)

	fix.v.toggleLink()

	assert.False(t, fix.v.linker.Linked())
	require.NotEmpty(t, fix.notifier.titles)
	assert.Equal(t, "Linking failed!", fix.notifier.titles[0])
	assert.Contains(t, fix.notifier.messages[0], "different devices")
}

// TestSelectDevice_WhileLinkedUnlinksFirst verifies that:
//
//	Given a linked pair,
//	When the user picks a different device for either side,
//	Then the link is broken and the new selection takes effect,
//	waiting for an explicit re-link.
func TestSelectDevice_WhileLinkedUnlinksFirst(t *testing.T) {
	fix := newAppFixture(t)
	fix.selectPair("dev-speakers", "dev-headphones")
	fix.v.toggleLink()
	require.True(t, fix.v.linker.Linked())

	dacIndex := fix.v.snapshot.IndexOf("dev-dac")
	fix.v.selectDevice(false, dacIndex)

	assert.False(t, fix.v.linker.Linked())
	assert.Equal(t, dacIndex, fix.v.selectedSlave)
}

// TestRestoreSavedLink_RelinksSavedPair verifies that a pairing stored as
// active is re-established at startup.
func TestRestoreSavedLink_RelinksSavedPair(t *testing.T) {
	fix := newAppFixture(t)

	require.NoError(t, fix.v.configMan.StoreLinkState(LinkState{
		MasterDevice: "dev-speakers",
		SlaveDevice:  "dev-headphones",
		LinkActive:   true,
	}))

	fix.v.restoreSavedLink()

	assert.True(t, fix.v.linker.Linked())
	assert.Equal(t, fix.v.snapshot.IndexOf("dev-speakers"), fix.v.selectedMaster)
	assert.Equal(t, fix.v.snapshot.IndexOf("dev-headphones"), fix.v.selectedSlave)
}

// TestRestoreSavedLink_InactiveStaysUnlinked verifies that a pairing stored
// as inactive only preselects the devices.
func TestRestoreSavedLink_InactiveStaysUnlinked(t *testing.T) {
	fix := newAppFixture(t)

	require.NoError(t, fix.v.configMan.StoreLinkState(LinkState{
		MasterDevice: "dev-speakers",
		SlaveDevice:  "dev-headphones",
	}))

	fix.v.restoreSavedLink()

	assert.False(t, fix.v.linker.Linked())
	assert.Equal(t, fix.v.snapshot.IndexOf("dev-speakers"), fix.v.selectedMaster)
}

// TestRestoreSavedLink_ForceLinkOverridesInactive verifies the -link flag
// behavior: link the saved pair even if it was unlinked on last exit.
func TestRestoreSavedLink_ForceLinkOverridesInactive(t *testing.T) {
	fix := newAppFixture(t)
	fix.v.forceLink = true

	require.NoError(t, fix.v.configMan.StoreLinkState(LinkState{
		MasterDevice: "dev-speakers",
		SlaveDevice:  "dev-headphones",
	}))

	fix.v.restoreSavedLink()

	assert.True(t, fix.v.linker.Linked())
}

// TestRestoreSavedLink_MissingDeviceSkipsQuietly verifies that:
//
//	Given a saved pairing whose master no longer exists,
//	When the app restores at startup,
//	Then nothing links, nothing toasts, and the missing side stays
//	unselected.
func TestRestoreSavedLink_MissingDeviceSkipsQuietly(t *testing.T) {
	fix := newAppFixture(t)

	require.NoError(t, fix.v.configMan.StoreLinkState(LinkState{
		MasterDevice: "dev-unplugged",
		SlaveDevice:  "dev-headphones",
		LinkActive:   true,
	}))

	fix.v.restoreSavedLink()

	assert.False(t, fix.v.linker.Linked())
	assert.Equal(t, -1, fix.v.selectedMaster)
	assert.Equal(t, fix.v.snapshot.IndexOf("dev-headphones"), fix.v.selectedSlave)
	assert.Empty(t, fix.notifier.titles)
}

// TestPersistLinkState_OnlySavesAfterUserChanges verifies the dirty flag:
// runs where the user touched nothing never write settings.
func TestPersistLinkState_OnlySavesAfterUserChanges(t *testing.T) {
	fix := newAppFixture(t)

	fix.v.persistLinkState()

	_, err := os.Stat(path.Join(logDirectory, internalConfigFilepath))
	assert.True(t, os.IsNotExist(err), "no settings file should be written")

	fix.selectPair("dev-speakers", "dev-headphones")
	fix.v.toggleLink()
	fix.v.persistLinkState()

	_, err = os.Stat(path.Join(logDirectory, internalConfigFilepath))
	assert.NoError(t, err, "settings file should exist after user changes")

	state := fix.v.configMan.SavedLinkState()
	assert.Equal(t, "dev-speakers", state.MasterDevice)
	assert.Equal(t, "dev-headphones", state.SlaveDevice)
	assert.True(t, state.LinkActive)

	assert.False(t, fix.v.saveChanges, "dirty flag should clear after a save")
}

// TestPresenterForwarding_NilTrayIsSafe verifies the headless mode: engine
// display updates with no tray attached must not crash.
func TestPresenterForwarding_NilTrayIsSafe(t *testing.T) {
	fix := newAppFixture(t)

	fix.v.VolumeChanged(0.5, false)
	fix.v.LinkStateChanged(true)
}
