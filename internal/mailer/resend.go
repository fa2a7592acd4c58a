package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// ResendMaxBatch is the Resend batch endpoint limit.
const ResendMaxBatch = 100

// ResendSender sends through the Resend API. Batches are all-or-nothing.
type ResendSender struct {
	client *resend.Client
	log    *logger.Logger
}

// NewResendSender creates a Resend sender.
func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), log: logger.Named("resend")}
}

// MaxBatchSize returns the Resend batch limit.
func (s *ResendSender) MaxBatchSize() int { return ResendMaxBatch }

func resendRequest(msg *Message) *resend.SendEmailRequest {
	req := &resend.SendEmailRequest{
		From:    msg.From(),
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	if msg.ReplyTo != "" {
		req.ReplyTo = msg.ReplyTo
	}
	return req
}

// Send delivers a single message.
func (s *ResendSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, resendRequest(msg))
	if err != nil {
		return nil, resendError(err)
	}
	s.log.Debug("sent", "recipient", msg.To, "message_id", sent.Id)
	return &Result{MessageID: sent.Id, Provider: "resend", SentAt: time.Now()}, nil
}

// SendBatch sends up to ResendMaxBatch messages in one call.
func (s *ResendSender) SendBatch(ctx context.Context, msgs []Message) (*BatchResult, error) {
	if len(msgs) > ResendMaxBatch {
		return nil, fmt.Errorf("resend: batch size %d exceeds max of %d", len(msgs), ResendMaxBatch)
	}
	result := &BatchResult{Provider: "resend", Items: make([]ItemResult, len(msgs))}
	if len(msgs) == 0 {
		return result, nil
	}

	params := make([]*resend.SendEmailRequest, len(msgs))
	for i := range msgs {
		params[i] = resendRequest(&msgs[i])
	}
	resp, err := s.client.Batch.SendWithContext(ctx, params)
	if err != nil {
		return nil, resendError(err)
	}
	for i := range result.Items {
		if i < len(resp.Data) {
			result.Items[i].MessageID = resp.Data[i].Id
		} else {
			result.Items[i].Err = fmt.Errorf("resend: no id returned for message %d", i)
		}
	}
	s.log.Debug("batch sent", "messages", len(msgs))
	return result, nil
}

// resendError maps rate limiting onto ErrThrottled. The client reports API
// failures as plain errors carrying the response text.
func resendError(err error) error {
	text := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "too many requests", "429"} {
		if strings.Contains(text, marker) {
			return fmt.Errorf("resend: %w: %v", ErrThrottled, err)
		}
	}
	return fmt.Errorf("resend: %w", err)
}
