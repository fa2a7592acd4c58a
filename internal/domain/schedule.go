package domain

import "time"

// ScheduleStatus enumerates the states of a single planned execution.
type ScheduleStatus string

const (
	SchedulePending    ScheduleStatus = "pending"
	ScheduleProcessing ScheduleStatus = "processing"
	ScheduleCompleted  ScheduleStatus = "completed"
	ScheduleFailed     ScheduleStatus = "failed"
)

// RepeatInterval is the unit a recurring schedule advances by.
type RepeatInterval string

const (
	RepeatNone    RepeatInterval = ""
	RepeatDaily   RepeatInterval = "daily"
	RepeatWeekly  RepeatInterval = "weekly"
	RepeatMonthly RepeatInterval = "monthly"
)

// Valid reports whether r is a known interval (including none).
func (r RepeatInterval) Valid() bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
		return true
	}
	return false
}

// Schedule is a single planned execution of a campaign.
type Schedule struct {
	ID             string         `json:"id" db:"id"`
	OwnerID        string         `json:"owner_id" db:"owner_id"`
	CampaignID     string         `json:"campaign_id" db:"campaign_id"`
	ScheduledAt    time.Time      `json:"scheduled_at" db:"scheduled_at"`
	Timezone       string         `json:"timezone" db:"timezone"`
	Status         ScheduleStatus `json:"status" db:"status"`
	ClaimedAt      *time.Time     `json:"claimed_at" db:"claimed_at"`
	ExecutedAt     *time.Time     `json:"executed_at" db:"executed_at"`
	ErrorMessage   string         `json:"error_message" db:"error_message"`
	Attempts       int            `json:"attempts" db:"attempts"`
	RepeatInterval RepeatInterval `json:"repeat_interval" db:"repeat_interval"`
	// RepeatCount is the number of remaining occurrences; nil means unbounded.
	RepeatCount *int      `json:"repeat_count" db:"repeat_count"`
	TagFilter   []string  `json:"tag_filter" db:"tag_filter"`
	LastSummary string    `json:"last_summary" db:"last_summary"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Location resolves the schedule's timezone, falling back to UTC.
func (s *Schedule) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Recurring reports whether the schedule carries a repeat interval.
func (s *Schedule) Recurring() bool {
	return s.RepeatInterval != RepeatNone
}
