package volink

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Notifier provides generic notification sending
type Notifier interface {
	Notify(title string, message string)
}

// ToastNotifier sends host OS notifications (toasts on Windows, desktop
// notifications over D-Bus elsewhere)
type ToastNotifier struct {
	logger *zap.SugaredLogger
}

func NewToastNotifier(logger *zap.SugaredLogger) (*ToastNotifier, error) {
	logger = logger.Named("notifier")
	tn := &ToastNotifier{logger: logger}

	logger.Debug("Created toast notifier instance")

	return tn, nil
}

// Notify sends a notification. Failures are logged and swallowed
func (tn *ToastNotifier) Notify(title string, message string) {
	tn.logger.Infow("Sending notification", "title", title, "message", message)

	if err := beeep.Notify(title, message, notificationIconPath); err != nil {
		tn.logger.Warnw("Failed to send notification", "error", err)
	}
}
