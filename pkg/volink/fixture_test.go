package volink

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixtureOrigin is the correlation token the fixture's linker writes with.
// Notifications carrying any other origin count as foreign changes
const fixtureOrigin = "{F0E9D8C7-B6A5-4433-2211-00FFEEDDCCBB}"

func newTestLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// fakeWrite records one SetVolume or SetMute call against a fake session
type fakeWrite struct {
	origin string
	volume float32
	muted  bool
	isMute bool
}

// fakeSession is an in-memory VolumeSession. Error fields make the matching
// call fail; emit plays an OS change notification into the subscriber
type fakeSession struct {
	name string

	volume float32
	muted  bool

	volumeErr    error
	muteErr      error
	setVolumeErr error
	setMuteErr   error
	subscribeErr error

	writes     []fakeWrite
	handler    func(VolumeEvent)
	subscribed bool
	closed     bool
	subCloses  int
}

func (s *fakeSession) Volume() (float32, error) {
	if s.volumeErr != nil {
		return 0, s.volumeErr
	}
	return s.volume, nil
}

func (s *fakeSession) SetVolume(level float32, origin string) error {
	if s.setVolumeErr != nil {
		return s.setVolumeErr
	}

	s.volume = level
	s.writes = append(s.writes, fakeWrite{origin: origin, volume: level})
	return nil
}

func (s *fakeSession) Mute() (bool, error) {
	if s.muteErr != nil {
		return false, s.muteErr
	}
	return s.muted, nil
}

func (s *fakeSession) SetMute(muted bool, origin string) error {
	if s.setMuteErr != nil {
		return s.setMuteErr
	}

	s.muted = muted
	s.writes = append(s.writes, fakeWrite{origin: origin, muted: muted, isMute: true})
	return nil
}

func (s *fakeSession) Subscribe(handler func(VolumeEvent)) (Subscription, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}

	s.handler = handler
	s.subscribed = true
	return &fakeSubscription{session: s}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// emit simulates the OS delivering a change notification for this session
func (s *fakeSession) emit(event VolumeEvent) {
	if s.handler != nil {
		s.handler(event)
	}
}

// volumeWrites returns only the SetVolume calls recorded against the session
func (s *fakeSession) volumeWrites() []fakeWrite {
	var writes []fakeWrite
	for _, write := range s.writes {
		if !write.isMute {
			writes = append(writes, write)
		}
	}
	return writes
}

type fakeSubscription struct {
	session *fakeSession
}

func (fs *fakeSubscription) Close() error {
	if fs.session.subscribed {
		fs.session.subscribed = false
		fs.session.handler = nil
		fs.session.subCloses++
	}
	return nil
}

// fakeEndpoint mints a fresh fakeSession per OpenSession call, seeded with
// the endpoint's state and error injections. All opened sessions are retained
// for inspection
type fakeEndpoint struct {
	id   string
	name string

	volume float32
	muted  bool

	openErr      error
	subscribeErr error
	volumeErr    error
	muteErr      error

	sessions []*fakeSession
}

func (e *fakeEndpoint) ID() string   { return e.id }
func (e *fakeEndpoint) Name() string { return e.name }

func (e *fakeEndpoint) OpenSession() (VolumeSession, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}

	session := &fakeSession{
		name:         e.name,
		volume:       e.volume,
		muted:        e.muted,
		subscribeErr: e.subscribeErr,
		volumeErr:    e.volumeErr,
		muteErr:      e.muteErr,
	}
	e.sessions = append(e.sessions, session)

	return session, nil
}

func (e *fakeEndpoint) lastSession() *fakeSession {
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// presenterEvent is one recorded Presenter callback, in arrival order
type presenterEvent struct {
	kind   string // "link" or "volume"
	linked bool
	volume float32
	muted  bool
}

type recordingPresenter struct {
	events []presenterEvent
}

func (p *recordingPresenter) LinkStateChanged(linked bool) {
	p.events = append(p.events, presenterEvent{kind: "link", linked: linked})
}

func (p *recordingPresenter) VolumeChanged(volume float32, muted bool) {
	p.events = append(p.events, presenterEvent{kind: "volume", volume: volume, muted: muted})
}

func (p *recordingPresenter) volumeEvents() []presenterEvent {
	var events []presenterEvent
	for _, event := range p.events {
		if event.kind == "volume" {
			events = append(events, event)
		}
	}
	return events
}

func (p *recordingPresenter) linkEvents() []bool {
	var events []bool
	for _, event := range p.events {
		if event.kind == "link" {
			events = append(events, event.linked)
		}
	}
	return events
}

// fakeNotifier records toast notifications instead of showing them
type fakeNotifier struct {
	titles   []string
	messages []string
}

func (n *fakeNotifier) Notify(title, message string) {
	n.titles = append(n.titles, title)
	n.messages = append(n.messages, message)
}

// linkerFixture wires a Linker over three fake devices with a synchronous
// post function, so notifications are handled inline during the test
type linkerFixture struct {
	t *testing.T

	endpoints []*fakeEndpoint
	snapshot  *Snapshot
	presenter *recordingPresenter
	linker    *Linker

	fatals        []error
	linkedAtFatal []bool
}

func newLinkerFixture(t *testing.T) *linkerFixture {
	t.Helper()

	fix := &linkerFixture{
		t:         t,
		presenter: &recordingPresenter{},
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

	snapshot, err := newSnapshot(newTestLogger(), endpoints, "")
	require.NoError(t, err, "fixture snapshot should build")
	fix.snapshot = snapshot

	synchronousPost := func(task func()) { task() }

	fix.linker = NewLinker(newTestLogger(), snapshot, synchronousPost, fixtureOrigin, fix.presenter,
		func(err error) {
			fix.linkedAtFatal = append(fix.linkedAtFatal, fix.linker.Linked())
			fix.fatals = append(fix.fatals, err)
		})

	return fix
}

// index resolves a device ID to its snapshot ordinal
func (fix *linkerFixture) index(id string) int {
	fix.t.Helper()

	index := fix.snapshot.IndexOf(id)
	require.GreaterOrEqual(fix.t, index, 0, "device %s should be in the snapshot", id)

	return index
}

// device returns the fake endpoint carrying the given ID
func (fix *linkerFixture) device(id string) *fakeEndpoint {
	fix.t.Helper()

	for _, endpoint := range fix.endpoints {
		if endpoint.id == id {
			return endpoint
		}
	}

	fix.t.Fatalf("no fake endpoint with ID %s", id)
	return nil
}

// session returns the most recently opened session on the given device
func (fix *linkerFixture) session(id string) *fakeSession {
	fix.t.Helper()

	session := fix.device(id).lastSession()
	require.NotNil(fix.t, session, "device %s should have an open session", id)

	return session
}

// link links the two devices and fails the test if that doesn't work
func (fix *linkerFixture) link(masterID, slaveID string) {
	fix.t.Helper()

	err := fix.linker.Link(fix.index(masterID), fix.index(slaveID))
	require.NoError(fix.t, err, "linking %s -> %s should succeed", masterID, slaveID)
}
