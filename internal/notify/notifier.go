// Package notify delivers outbound reminder messages.
package notify

import (
	"context"
	"errors"

	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

var (
	ErrRecipientRequired = errors.New("notify: recipient required")
	ErrBodyRequired      = errors.New("notify: body required")
)

// Notifier sends one text message to one routable address.
type Notifier interface {
	Send(ctx context.Context, to, body string) error
}

// LogNotifier only logs. Used when no gateway credentials are configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, to, body string) error {
	if to == "" {
		return ErrRecipientRequired
	}
	n.logger.Info("notification not sent, gateway disabled", "to", to, "body", body)
	return nil
}
