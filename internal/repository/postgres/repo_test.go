package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/recurrence"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() { db.Close() }
}

var scheduleCols = []string{
	"id", "owner_id", "campaign_id", "scheduled_at", "timezone", "status",
	"claimed_at", "executed_at", "error_message", "attempts", "repeat_interval",
	"repeat_count", "tag_filter", "last_summary", "created_at",
}

func TestScheduleClaim(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewScheduleRepo(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-15 * time.Minute)
	claimSQL := regexp.QuoteMeta(`SET status = 'processing', claimed_at = $2, attempts = attempts + 1`) +
		`\s+WHERE id = \$1\s+AND \(status = 'pending' OR \(status = 'processing' AND claimed_at < \$3\)\)\s+RETURNING`

	mock.ExpectQuery(claimSQL).
		WithArgs("s1", now, stale).
		WillReturnRows(sqlmock.NewRows(scheduleCols).AddRow(
			"s1", "o1", "c1", now.Add(-time.Minute), "America/Sao_Paulo", "processing",
			now, nil, "", 1, "weekly",
			3, "{vip,news}", "", now.Add(-time.Hour),
		))
	s, err := repo.Claim(context.Background(), "s1", now, stale)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, domain.ScheduleProcessing, s.Status)
	assert.Equal(t, domain.RepeatWeekly, s.RepeatInterval)
	require.NotNil(t, s.RepeatCount)
	assert.Equal(t, 3, *s.RepeatCount)
	assert.Equal(t, []string{"vip", "news"}, s.TagFilter)
	require.NotNil(t, s.ClaimedAt)
	assert.Nil(t, s.ExecutedAt)

	// Losing the race matches zero rows.
	mock.ExpectQuery(claimSQL).
		WithArgs("s1", now, stale).
		WillReturnRows(sqlmock.NewRows(scheduleCols))
	s, err = repo.Claim(context.Background(), "s1", now, stale)
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleListDue(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewScheduleRepo(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-15 * time.Minute)
	mock.ExpectQuery(`FROM schedules\s+WHERE \(status = 'pending' AND scheduled_at <= \$1\)`).
		WithArgs(now, stale, 50).
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow("s1", "o1", "c1", now, "UTC", "pending", nil, nil, "", 0, "", nil, "{}", "", now).
			AddRow("s2", "o1", "c2", now, "UTC", "processing", stale.Add(-time.Minute), nil, "", 1, "", nil, "{}", "", now))

	due, err := repo.ListDue(context.Background(), now, stale, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Nil(t, due[0].RepeatCount)
	assert.Equal(t, domain.ScheduleProcessing, due[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleUnknownIntervalIsOneOff(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewScheduleRepo(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM schedules WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow("s1", "o1", "c1", now, "UTC", "pending", nil, nil, "", 0, "hourly", 4, "{}", "", now))

	s, err := repo.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.RepeatNone, s.RepeatInterval)
	assert.False(t, s.Recurring())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleTransitions(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewScheduleRepo(db)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`SET status = 'completed'`).
		WithArgs("s1", at, "sent=2 failed=0").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Complete(ctx, "s1", at, "sent=2 failed=0"))

	mock.ExpectExec(`SET status = 'failed'`).
		WithArgs("missing", at, "boom", "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Fail(ctx, "missing", at, "boom", ""), domain.ErrNotFound)

	mock.ExpectExec(`SET status = 'pending', claimed_at = NULL, error_message = \$2\s+WHERE id = \$1 AND status = 'processing'`).
		WithArgs("s1", "store unavailable").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Release(ctx, "s1", "store unavailable"))

	two := 2
	next := at.AddDate(0, 0, 7)
	mock.ExpectExec(`SET status = 'pending', scheduled_at = \$2, repeat_count = \$3,\s+executed_at = \$4, last_summary = \$5`).
		WithArgs("s1", next, sqlmock.AnyArg(), at, "sent=3 failed=0").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Reschedule(ctx, "s1", recurrence.Run{At: at, Summary: "sent=3 failed=0"}, next, &two))

	mock.ExpectExec(`UPDATE schedules SET claimed_at = \$2\s+WHERE id = \$1 AND status = 'processing'`).
		WithArgs("s1", at.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Touch(ctx, "s1", at.Add(time.Minute)), "a finished schedule is not an error")

	mock.ExpectExec(`UPDATE schedules SET repeat_count = \$2 WHERE id = \$1`).
		WithArgs("s1", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetRemaining(ctx, "s1", 0))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)
	ctx := context.Background()
	now := time.Now()

	cols := []string{"id", "owner_id", "name", "subject", "from_name", "from_email", "reply_to",
		"html_content", "template_id", "segment_id", "tags", "locale", "status", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM campaigns\s+WHERE id = \$1 AND owner_id = \$2`).
		WithArgs("c1", "o1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"c1", "o1", "Promo", "Hi", "Ignite", "news@example.com", "",
			"<p>x</p>", "t1", nil, "{vip}", "pt-BR", "scheduled", now, now))
	c, err := repo.GetCampaign(ctx, "o1", "c1")
	require.NoError(t, err)
	require.NotNil(t, c.TemplateID)
	assert.Equal(t, "t1", *c.TemplateID)
	assert.Nil(t, c.SegmentID)
	assert.Equal(t, []string{"vip"}, c.Tags)
	assert.Equal(t, domain.CampaignScheduled, c.Status)

	mock.ExpectQuery(`FROM campaigns`).
		WithArgs("nope", "o1").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetCampaign(ctx, "o1", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mock.ExpectExec(`UPDATE campaigns SET status = \$3`).
		WithArgs("c1", "o1", "sending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetCampaignStatus(ctx, "o1", "c1", domain.CampaignSending))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepo(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewTemplateRepo(db)
	now := time.Now()

	mock.ExpectQuery(`FROM templates`).
		WithArgs("t1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "subject", "html_content", "variables", "created_at", "updated_at"}).
			AddRow("t1", "o1", "Receipt", "Your order", "Total {{amt}}", []byte(`{"amt":"currency"}`), now, now))
	tpl, err := repo.GetTemplate(context.Background(), "o1", "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.VarCurrency, tpl.Variables["amt"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentRepoNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewSegmentRepo(db)

	mock.ExpectQuery(`FROM segments`).WithArgs("g1", "o1").WillReturnError(sql.ErrNoRows)
	_, err := repo.GetSegment(context.Background(), "o1", "g1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// tagArray matches a pq array argument by its decoded elements.
type tagArray []string

func (want tagArray) Match(v driver.Value) bool {
	var got pq.StringArray
	if err := got.Scan(v); err != nil {
		return false
	}
	return assert.ObjectsAreEqual([]string(want), []string(got))
}

func TestContactRepoNormalizesFilterTags(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewContactRepo(db)
	cols := []string{"id", "owner_id", "email", "name", "attributes", "tags", "status", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta(`AND tags && $2`)).
		WithArgs("o1", tagArray{"vip", "news"}).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("k1", "o1", "ana@example.com", "Ana", nil, "{vip}", "active", time.Now()))
	got, err := repo.ListContacts(context.Background(), "o1", []string{" VIP", "News", "vip"}, false)
	require.NoError(t, err)
	require.Len(t, got, 1)

	mock.ExpectQuery(`WHERE owner_id = \$1 AND status = 'active'\s+ORDER BY`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.ListContacts(context.Background(), "o1", []string{"  "}, true)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepoTagModes(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewContactRepo(db)
	ctx := context.Background()
	now := time.Now()
	cols := []string{"id", "owner_id", "email", "name", "attributes", "tags", "status", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta(`AND tags && $2`)).
		WithArgs("o1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("k1", "o1", "ana@example.com", "Ana", []byte(`{"amt":"10"}`), "{vip}", "active", now))
	got, err := repo.ListContacts(ctx, "o1", []string{"vip", "news"}, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10", got[0].Attributes["amt"])
	assert.Equal(t, domain.ContactActive, got[0].Status)

	mock.ExpectQuery(regexp.QuoteMeta(`AND tags @> $2`)).
		WithArgs("o1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols))
	got, err = repo.ListContacts(ctx, "o1", []string{"vip", "news"}, true)
	require.NoError(t, err)
	assert.Empty(t, got)

	mock.ExpectQuery(`WHERE owner_id = \$1 AND status = 'active'\s+ORDER BY`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.ListContacts(ctx, "o1", nil, false)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionRepo(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewSuppressionRepo(db)
	ctx := context.Background()

	got, err := repo.SuppressedEmails(ctx, "o1", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	mock.ExpectQuery(regexp.QuoteMeta(`email = ANY($2)`)).
		WithArgs("o1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("Bob@Example.com"))
	got, err = repo.SuppressedEmails(ctx, "o1", []string{"ana@example.com", "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"bob@example.com": true}, got)

	mock.ExpectExec(`INSERT INTO suppressions`).
		WithArgs("o1", "bob@example.com", "manual").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Suppress(ctx, domain.Suppression{OwnerID: "o1", Email: " Bob@Example.com "}))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryLogCopy(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewDeliveryLogRepo(db)

	entries := []domain.DeliveryLog{
		{ScheduleID: "s1", CampaignID: "c1", OwnerID: "o1", Recipient: "ana@example.com",
			Outcome: domain.DeliverySent, ProviderMessageID: "m1", Attempts: 1},
		{ID: "d2", ScheduleID: "s1", CampaignID: "c1", OwnerID: "o1", Recipient: "bob@example.com",
			Outcome: domain.DeliveryFailed, Error: "rejected", Attempts: 2},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`COPY`)
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "s1", "c1", "o1", "ana@example.com", "sent", "m1", "", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("d2", "s1", "c1", "o1", "bob@example.com", "failed", "", "rejected", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.AppendDeliveries(context.Background(), entries))
	require.NoError(t, repo.AppendDeliveries(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
