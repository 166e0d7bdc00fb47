package volink

import (
	"fmt"

	"github.com/diegosz/go-wca/pkg/wca"
	"github.com/go-ole/go-ole"
	"go.uber.org/zap"
)

// wcaSession wraps a device's IAudioEndpointVolume. Correlation tokens are
// braced GUID strings; they ride along as the COM event context and come
// back out of the notification data, which is how a subscriber tells this
// process's writes apart from everyone else's.
type wcaSession struct {
	logger *zap.SugaredLogger

	endpointVolume *wca.IAudioEndpointVolume

	name string
}

func newWCASession(logger *zap.SugaredLogger, endpointVolume *wca.IAudioEndpointVolume, name string) *wcaSession {
	s := &wcaSession{
		logger:         logger,
		endpointVolume: endpointVolume,
		name:           name,
	}

	s.logger.Debugw("Opened WCA volume session", "device", name)

	return s
}

func (s *wcaSession) Volume() (float32, error) {
	var level float32

	if err := s.endpointVolume.GetMasterVolumeLevelScalar(&level); err != nil {
		s.logger.Warnw("Failed to get master volume", "device", s.name, "error", err)
		return 0, fmt.Errorf("get master volume scalar: %w", err)
	}

	return level, nil
}

func (s *wcaSession) SetVolume(level float32, origin string) error {
	if err := s.endpointVolume.SetMasterVolumeLevelScalar(level, originGUID(origin)); err != nil {
		s.logger.Warnw("Failed to set master volume",
			"device", s.name,
			"level", level,
			"error", err)

		return fmt.Errorf("set master volume scalar: %w", err)
	}

	return nil
}

func (s *wcaSession) Mute() (bool, error) {
	var muted bool

	if err := s.endpointVolume.GetMute(&muted); err != nil {
		s.logger.Warnw("Failed to get mute state", "device", s.name, "error", err)
		return false, fmt.Errorf("get mute state: %w", err)
	}

	return muted, nil
}

func (s *wcaSession) SetMute(muted bool, origin string) error {
	if err := s.endpointVolume.SetMute(muted, originGUID(origin)); err != nil {
		s.logger.Warnw("Failed to set mute state",
			"device", s.name,
			"muted", muted,
			"error", err)

		return fmt.Errorf("set mute state: %w", err)
	}

	return nil
}

func (s *wcaSession) Subscribe(handler func(VolumeEvent)) (Subscription, error) {
	callback := wca.IAudioEndpointVolumeCallbackFunc{
		OnNotify: func(data *wca.AUDIO_VOLUME_NOTIFICATION_DATA) error {
			handler(VolumeEvent{
				Volume: data.FMasterVolume,
				Muted:  data.BMuted,
				Origin: data.GuidEventContext.String(),
			})

			// a failing callback would get us unregistered by the OS
			return nil
		},
	}
	aevc := wca.NewIAudioEndpointVolumeCallback(callback)

	if err := s.endpointVolume.RegisterControlChangeNotify(aevc); err != nil {
		s.logger.Warnw("Failed to register control change notification",
			"device", s.name,
			"error", err)

		return nil, fmt.Errorf("register control change notify: %w", err)
	}

	s.logger.Debugw("Registered control change notification", "device", s.name)

	return &wcaSubscription{session: s, callback: aevc}, nil
}

// Close releases the endpoint volume. Subscriptions must be closed first
func (s *wcaSession) Close() error {
	if s.endpointVolume != nil {
		s.endpointVolume.Release()
		s.endpointVolume = nil
	}

	s.logger.Debugw("Closed WCA volume session", "device", s.name)

	return nil
}

type wcaSubscription struct {
	session  *wcaSession
	callback *wca.IAudioEndpointVolumeCallback
}

func (sub *wcaSubscription) Close() error {
	if sub.callback == nil {
		return nil
	}

	if err := sub.session.endpointVolume.UnregisterControlChangeNotify(sub.callback); err != nil {
		sub.session.logger.Warnw("Failed to unregister control change notification",
			"device", sub.session.name,
			"error", err)

		return fmt.Errorf("unregister control change notify: %w", err)
	}

	sub.callback = nil

	sub.session.logger.Debugw("Unregistered control change notification", "device", sub.session.name)

	return nil
}

// originGUID converts a correlation token to a COM event context. An empty
// token means no context
func originGUID(origin string) *ole.GUID {
	if origin == "" {
		return nil
	}

	return ole.NewGUID(origin)
}
