package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/config"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func TestSESSender_Send(t *testing.T) {
	client := &fakeSES{}
	sender := newSESSender(client, "marketing")

	msg := testMessage("a@example.com", "<p>hi</p>")
	msg.ReplyTo = "reply@example.com"
	res, err := sender.Send(context.Background(), &msg)
	require.NoError(t, err)

	assert.Equal(t, "ses-123", res.MessageID)
	assert.Equal(t, "Ignite <news@example.com>", aws.ToString(client.input.FromEmailAddress))
	assert.Equal(t, []string{"a@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, []string{"reply@example.com"}, client.input.ReplyToAddresses)
	assert.Equal(t, "marketing", aws.ToString(client.input.ConfigurationSetName))
}

func TestSESSender_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		throttled bool
	}{
		{"too many requests", &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "slow down"}, true},
		{"sending quota", &smithy.GenericAPIError{Code: "LimitExceededException"}, true},
		{"rejected", &smithy.GenericAPIError{Code: "MessageRejected", Message: "bad address"}, false},
		{"network", errors.New("dial tcp: i/o timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newSESSender(&fakeSES{err: tt.err}, "")
			msg := testMessage("a@example.com", "x")
			_, err := sender.Send(context.Background(), &msg)
			require.Error(t, err)
			assert.Equal(t, tt.throttled, errors.Is(err, ErrThrottled))
		})
	}
}

func TestResendError(t *testing.T) {
	assert.ErrorIs(t, resendError(errors.New("[ERROR]: Too many requests. Rate limit exceeded")), ErrThrottled)
	assert.ErrorIs(t, resendError(errors.New("status 429")), ErrThrottled)

	err := resendError(errors.New("The from address is not verified"))
	assert.NotErrorIs(t, err, ErrThrottled)
	assert.Contains(t, err.Error(), "resend:")
}

func TestResendSender_BatchLimit(t *testing.T) {
	sender := NewResendSender("re_test")
	assert.Equal(t, ResendMaxBatch, sender.MaxBatchSize())

	_, err := sender.SendBatch(context.Background(), make([]Message, ResendMaxBatch+1))
	assert.Error(t, err)

	res, err := sender.SendBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestLogSender(t *testing.T) {
	sender := NewLogSender()
	msg := testMessage("a@example.com", "x")
	res, err := sender.Send(context.Background(), &msg)
	require.NoError(t, err)
	assert.Contains(t, res.MessageID, "dryrun-")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sender.Send(ctx, &msg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.MailConfig{Provider: "log"})
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = New(ctx, config.MailConfig{Provider: "sendgrid", SendGrid: config.SendGridConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &SendGridSender{}, s)
	_, ok := s.(BatchSender)
	assert.True(t, ok)

	s, err = New(ctx, config.MailConfig{Provider: "resend", Resend: config.ResendConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &ResendSender{}, s)

	_, err = New(ctx, config.MailConfig{Provider: "sendgrid"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(ctx, config.MailConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestMessageFrom(t *testing.T) {
	m := Message{FromEmail: "news@example.com"}
	assert.Equal(t, "news@example.com", m.From())
	m.FromName = "Ignite"
	assert.Equal(t, "Ignite <news@example.com>", m.From())
}
