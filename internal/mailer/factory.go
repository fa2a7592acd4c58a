package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-dispatch/internal/config"
)

// New builds the sender selected by cfg.Provider.
func New(ctx context.Context, cfg config.MailConfig) (Sender, error) {
	switch cfg.Provider {
	case "sendgrid":
		if cfg.SendGrid.APIKey == "" {
			return nil, fmt.Errorf("sendgrid: %w", ErrNotConfigured)
		}
		timeout := time.Duration(cfg.SendGrid.TimeoutSeconds) * time.Second
		return NewSendGridSender(cfg.SendGrid.APIKey, cfg.SendGrid.BaseURL, timeout), nil
	case "ses":
		return NewSESSender(ctx, cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region, cfg.SES.ConfigurationSet)
	case "resend":
		if cfg.Resend.APIKey == "" {
			return nil, fmt.Errorf("resend: %w", ErrNotConfigured)
		}
		return NewResendSender(cfg.Resend.APIKey), nil
	case "log", "":
		return NewLogSender(), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
