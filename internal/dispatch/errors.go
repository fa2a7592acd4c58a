package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCampaignNotFound is returned when a schedule points at a missing campaign.
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrAllFailed is the schedule error when no recipient was delivered.
	ErrAllFailed = errors.New("all deliveries failed")
)

// ConfigurationError reports a campaign that cannot be delivered as stored.
// It is terminal for the schedule and never retried.
type ConfigurationError struct {
	CampaignID string
	Missing    []string
	Err        error
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("campaign %s missing %s", e.CampaignID, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("campaign %s: %v", e.CampaignID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DeliveryError is a per-recipient send failure. It is recorded in the
// delivery log and never aborts the batch.
type DeliveryError struct {
	Recipient string
	Attempts  int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
