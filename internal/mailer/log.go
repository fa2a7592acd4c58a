package mailer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// LogSender accepts every message and only logs it. Used for dry runs.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a dry-run sender.
func NewLogSender() *LogSender {
	return &LogSender{log: logger.Named("mail-dryrun")}
}

// Send logs msg and returns a synthetic message id.
func (s *LogSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "dryrun-" + uuid.New().String()
	s.log.Info("message accepted",
		"recipient", msg.To,
		"subject", msg.Subject,
		"schedule_id", msg.ScheduleID,
		"message_id", id)
	return &Result{MessageID: id, Provider: "log", SentAt: time.Now()}, nil
}
