package server

import (
	"context"

	"go.uber.org/zap"
)

// Notifier is the outbound notification collaborator. Deliveries are
// fire-and-forget: the messaging core logs failures and never surfaces them
// to the request that triggered the notification.
type Notifier interface {
	Notify(ctx context.Context, event, details string) error
}

// LogNotifier is the default Notifier: it only writes to the log. Real
// delivery (email and the like) lives outside this repository.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event, details string) error {
	n.logger.Infof("notification (%s): %s", event, details)
	return nil
}

// notify runs the collaborator without letting it affect the caller
func (h *handler) notify(ctx context.Context, event, details string) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, event, details); err != nil {
		h.logger.Errorf("notifier failed for %s: %v", event, err)
	}
}
