package volink

import (
	"fmt"

	"go.uber.org/zap"
)

// volumeBridge carries change notifications from a session's OS callback
// thread over to the event loop, preserving their arrival order. It owns at
// most one subscription at a time. attach and detach must be called from the
// event loop goroutine.
type volumeBridge struct {
	logger  *zap.SugaredLogger
	post    func(func())
	handler func(VolumeEvent)

	subscription Subscription
}

func newVolumeBridge(logger *zap.SugaredLogger, post func(func()), handler func(VolumeEvent)) *volumeBridge {
	return &volumeBridge{
		logger:  logger.Named("bridge"),
		post:    post,
		handler: handler,
	}
}

// attach subscribes to the given session, replacing any previous subscription
func (vb *volumeBridge) attach(session VolumeSession) error {
	vb.detach()

	subscription, err := session.Subscribe(func(event VolumeEvent) {
		vb.post(func() {
			vb.forward(event)
		})
	})
	if err != nil {
		vb.logger.Warnw("Failed to subscribe to session notifications", "error", err)
		return fmt.Errorf("%w: %v", ErrSubscription, err)
	}

	vb.subscription = subscription
	vb.logger.Debug("Attached to session notification stream")

	return nil
}

// detach drops the current subscription, if any. Safe to call repeatedly,
// including from inside a forwarded notification
func (vb *volumeBridge) detach() {
	if vb.subscription == nil {
		return
	}

	if err := vb.subscription.Close(); err != nil {
		vb.logger.Warnw("Failed to close session subscription", "error", err)
	}

	vb.subscription = nil
	vb.logger.Debug("Detached from session notification stream")
}

func (vb *volumeBridge) attached() bool {
	return vb.subscription != nil
}

// forward hands one event to the handler. A panicking handler must not take
// down the loop goroutine with it, since notifications originate from
// arbitrary OS state
func (vb *volumeBridge) forward(event VolumeEvent) {
	defer func() {
		if r := recover(); r != nil {
			vb.logger.Errorw("Recovered from panic in notification handler", "error", r)
		}
	}()

	vb.handler(event)
}
