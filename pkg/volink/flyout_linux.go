package volink

import (
	"go.uber.org/zap"
)

// the volume OSD is a Windows shell feature; desktop environments already
// surface their own on PulseAudio changes
type audioFlyout struct {
	logger *zap.SugaredLogger
}

func newAudioFlyout(logger *zap.SugaredLogger) *audioFlyout {
	return &audioFlyout{logger: logger.Named("flyout")}
}

func (af *audioFlyout) maybeShow() {}
