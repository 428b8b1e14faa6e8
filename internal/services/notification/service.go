// Package notification dispatches card event notifications to users.
// Delivery is best-effort: the ledger mutation has already committed by
// the time a notification fires, so failures are logged and swallowed
// by callers.
package notification

import (
	"context"
	"log/slog"
)

// Channel selects a delivery transport.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Notification types
const (
	TypeCardFunded     = "card_funded"
	TypeCardBlocked    = "card_blocked"
	TypeCardSpend      = "card_spend"
	TypeDisputeUpdated = "dispute_updated"
	TypeUserApproved   = "card_user_approved"
	TypeUserDenied     = "card_user_denied"
)

// CardNotification is the payload handed to the dispatch layer.
type CardNotification struct {
	UserID             uint
	NotificationType   string
	Metadata           map[string]interface{}
	EmailMail          string
	BalanceChangeEvent string
}

// Dispatcher sends card notifications over the requested channels.
type Dispatcher interface {
	SendCardNotification(ctx context.Context, channels []Channel, n CardNotification) error
}

// Service is the default Dispatcher. The transport adapters (mailer,
// SMS gateway) live behind it; this implementation records the dispatch
// in the structured log.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		panic("logger is required")
	}
	return &Service{logger: logger}
}

func (s *Service) SendCardNotification(ctx context.Context, channels []Channel, n CardNotification) error {
	s.logger.InfoContext(ctx, "card notification dispatched",
		"user_id", n.UserID,
		"type", n.NotificationType,
		"channels", channels,
	)
	return nil
}
