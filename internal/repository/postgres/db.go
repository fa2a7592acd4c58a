// Package postgres implements the dispatch stores against PostgreSQL.
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/config"
)

// Open connects to the database and applies the pool settings.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// Repos bundles every repository over one pool.
type Repos struct {
	Schedules    *ScheduleRepo
	Campaigns    *CampaignRepo
	Templates    *TemplateRepo
	Segments     *SegmentRepo
	Contacts     *ContactRepo
	Suppressions *SuppressionRepo
	Deliveries   *DeliveryLogRepo
}

func NewRepos(db *sql.DB) *Repos {
	return &Repos{
		Schedules:    NewScheduleRepo(db),
		Campaigns:    NewCampaignRepo(db),
		Templates:    NewTemplateRepo(db),
		Segments:     NewSegmentRepo(db),
		Contacts:     NewContactRepo(db),
		Suppressions: NewSuppressionRepo(db),
		Deliveries:   NewDeliveryLogRepo(db),
	}
}

func nullString(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
