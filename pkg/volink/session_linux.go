package volink

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

// matching self-issued writes against incoming change events tolerates this
// much drift in the reported channel volume
const volumeMatchEpsilon = 0.001

// paSession wraps one PulseAudio sink. The protocol has no equivalent of a
// write's event context, so correlation tokens are emulated: the session
// remembers its most recent write and stamps that write's origin onto the
// next change event that matches it. Anything else comes through with an
// empty origin.
type paSession struct {
	logger *zap.SugaredLogger
	finder *paDeviceFinder

	sinkIndex uint32
	channels  byte
	name      string

	lock      sync.Mutex
	handler   func(VolumeEvent)
	lastWrite *paWrite
}

type paWrite struct {
	origin string
	volume float32
	muted  bool
	isMute bool
}

func (w *paWrite) matches(event VolumeEvent) bool {
	if w.isMute {
		return event.Muted == w.muted
	}

	diff := event.Volume - w.volume
	return diff > -volumeMatchEpsilon && diff < volumeMatchEpsilon
}

func newPASession(logger *zap.SugaredLogger,
	finder *paDeviceFinder,
	sinkIndex uint32,
	channels byte,
	name string) *paSession {

	s := &paSession{
		logger:    logger,
		finder:    finder,
		sinkIndex: sinkIndex,
		channels:  channels,
		name:      name,
	}

	s.logger.Debugw("Opened PA volume session", "device", name)

	return s
}

func (s *paSession) Volume() (float32, error) {
	info, err := s.queryInfo()
	if err != nil {
		return 0, err
	}

	return volumeFromInfo(info), nil
}

func (s *paSession) SetVolume(level float32, origin string) error {
	volumes := make(proto.ChannelVolumes, s.channels)
	for channel := range volumes {
		volumes[channel] = uint32(level * float32(proto.VolumeNorm))
	}

	request := proto.SetSinkVolume{
		SinkIndex:      s.sinkIndex,
		ChannelVolumes: volumes,
	}

	s.rememberWrite(&paWrite{origin: origin, volume: level})

	if err := s.finder.client.Request(&request, nil); err != nil {
		s.forgetWrite()
		s.logger.Warnw("Failed to set sink volume",
			"device", s.name,
			"level", level,
			"error", err)

		return fmt.Errorf("set sink volume: %w", err)
	}

	return nil
}

func (s *paSession) Mute() (bool, error) {
	info, err := s.queryInfo()
	if err != nil {
		return false, err
	}

	return info.Mute, nil
}

func (s *paSession) SetMute(muted bool, origin string) error {
	request := proto.SetSinkMute{
		SinkIndex: s.sinkIndex,
		Mute:      muted,
	}

	s.rememberWrite(&paWrite{origin: origin, muted: muted, isMute: true})

	if err := s.finder.client.Request(&request, nil); err != nil {
		s.forgetWrite()
		s.logger.Warnw("Failed to set sink mute",
			"device", s.name,
			"muted", muted,
			"error", err)

		return fmt.Errorf("set sink mute: %w", err)
	}

	return nil
}

func (s *paSession) Subscribe(handler func(VolumeEvent)) (Subscription, error) {
	s.lock.Lock()
	if s.handler != nil {
		s.lock.Unlock()
		return nil, fmt.Errorf("session for %q is already subscribed", s.name)
	}
	s.handler = handler
	s.lock.Unlock()

	s.finder.register(s)

	s.logger.Debugw("Subscribed to sink changes", "device", s.name)

	return &paSubscription{session: s}, nil
}

func (s *paSession) Close() error {
	s.finder.unregister(s)

	s.lock.Lock()
	s.handler = nil
	s.lastWrite = nil
	s.lock.Unlock()

	s.logger.Debugw("Closed PA volume session", "device", s.name)

	return nil
}

// deliver turns a freshly queried sink state into a VolumeEvent, stamping the
// origin of our own most recent write if the state matches it
func (s *paSession) deliver(info *proto.GetSinkInfoReply) {
	s.lock.Lock()

	handler := s.handler
	if handler == nil {
		s.lock.Unlock()
		return
	}

	event := VolumeEvent{
		Volume: volumeFromInfo(info),
		Muted:  info.Mute,
	}

	if s.lastWrite != nil && s.lastWrite.matches(event) {
		event.Origin = s.lastWrite.origin
		s.lastWrite = nil
	}

	s.lock.Unlock()

	handler(event)
}

func (s *paSession) queryInfo() (*proto.GetSinkInfoReply, error) {
	request := proto.GetSinkInfo{SinkIndex: s.sinkIndex}
	reply := proto.GetSinkInfoReply{}

	if err := s.finder.client.Request(&request, &reply); err != nil {
		s.logger.Warnw("Failed to get sink info", "device", s.name, "error", err)
		return nil, fmt.Errorf("get sink info: %w", err)
	}

	return &reply, nil
}

func (s *paSession) rememberWrite(write *paWrite) {
	s.lock.Lock()
	s.lastWrite = write
	s.lock.Unlock()
}

func (s *paSession) forgetWrite() {
	s.lock.Lock()
	s.lastWrite = nil
	s.lock.Unlock()
}

func volumeFromInfo(info *proto.GetSinkInfoReply) float32 {
	if len(info.ChannelVolumes) == 0 {
		return 0
	}

	return float32(info.ChannelVolumes[0]) / float32(proto.VolumeNorm)
}

type paSubscription struct {
	session *paSession
}

func (sub *paSubscription) Close() error {
	if sub.session == nil {
		return nil
	}

	sub.session.finder.unregister(sub.session)

	sub.session.lock.Lock()
	sub.session.handler = nil
	sub.session.lock.Unlock()

	sub.session.logger.Debugw("Unsubscribed from sink changes", "device", sub.session.name)

	sub.session = nil

	return nil
}
