package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PratikDhanave/call-intake-service/internal/intake"
	"github.com/PratikDhanave/call-intake-service/internal/models"
)

// ErrNotFound is returned when a request lookup by id matches nothing.
var ErrNotFound = errors.New("service request not found")

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// callIDCandidates caps how many notes-marker matches are examined.
const callIDCandidates = 20

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore is the durable persistence layer for service requests and
// the campaign directory.
type PostgresStore struct {
	db     DB
	dbURL  string
	window time.Duration
	now    func() time.Time
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
// window is the dedupe window enforced inside CreateRequest.
func NewPostgresStore(dbURL string, window time.Duration) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := NewWithDB(pool, window)
	s.dbURL = dbURL
	return s, nil
}

// NewWithDB wraps an existing pool (or a mock of one).
func NewWithDB(db DB, window time.Duration) *PostgresStore {
	if window <= 0 {
		window = intake.DefaultDedupeWindow
	}
	return &PostgresStore{db: db, window: window, now: time.Now}
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.db.Close()
}

const requestColumns = `id, caller_phone, campaign_id, city_id, classification, line_number,
	status, COALESCE(call_id, ''), notes, created_at, updated_at`

func scanRequest(row pgx.Row) (models.ServiceRequest, error) {
	var (
		r             models.ServiceRequest
		class, status string
	)
	err := row.Scan(
		&r.ID, &r.CallerPhone, &r.CampaignID, &r.CityID, &class, &r.LineNumber,
		&status, &r.CallID, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	r.Classification = models.Classification(class)
	r.Status = models.RequestStatus(status)
	return r, nil
}

// FindUnresolvedByPhone returns the newest request in status "new" from phone
// created within window, or nil.
func (p *PostgresStore) FindUnresolvedByPhone(ctx context.Context, phone string, window time.Duration) (*models.ServiceRequest, error) {
	r, err := scanRequest(p.db.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM service_requests
		WHERE caller_phone = $1
		  AND status = 'new'
		  AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, phone, p.now().Add(-window)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FindByCallID returns the request that belongs to callID, matching either
// the call_id column or the notes marker of older rows. An exact call_id
// match always wins, so it cannot be pushed out by marker candidates.
func (p *PostgresStore) FindByCallID(ctx context.Context, callID string) (*models.ServiceRequest, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM service_requests
		WHERE call_id = $1
		   OR notes LIKE $2
		ORDER BY COALESCE(call_id = $1, false) DESC, created_at ASC
		LIMIT $3
	`, callID, "%"+escapeLike(intake.NotesMarker(callID))+"%", callIDCandidates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		// LIKE also matches longer ids sharing the prefix.
		if r.CallID == callID || intake.HasNotesMarker(r.Notes, callID) {
			return &r, nil
		}
	}
	return nil, rows.Err()
}

// HasAnyPriorRequest reports whether phone appears on any request, ever.
func (p *PostgresStore) HasAnyPriorRequest(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM service_requests WHERE caller_phone = $1)
	`, phone).Scan(&exists)
	return exists, err
}

// CreateRequest inserts a request and returns intake.ErrConflict when it is
// a duplicate.
//
// The insert runs under a transaction-scoped advisory lock on the caller's
// phone, so the unresolved-within-window recheck and the insert are atomic
// for a given caller. The UNIQUE call_id column rejects a second request for
// the same call regardless of caller.
func (p *PostgresStore) CreateRequest(ctx context.Context, req models.NewServiceRequest) (models.ServiceRequest, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.CallerPhone); err != nil {
		return models.ServiceRequest{}, fmt.Errorf("lock caller: %w", err)
	}

	var existing uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM service_requests
		WHERE caller_phone = $1
		  AND status = 'new'
		  AND created_at >= $2
		LIMIT 1
	`, req.CallerPhone, p.now().Add(-p.window)).Scan(&existing)
	switch {
	case err == nil:
		return models.ServiceRequest{}, intake.ErrConflict
	case !errors.Is(err, pgx.ErrNoRows):
		return models.ServiceRequest{}, err
	}

	status := req.Status
	if status == "" {
		status = models.StatusNew
	}

	r := models.ServiceRequest{
		ID:             uuid.New(),
		CallerPhone:    req.CallerPhone,
		CampaignID:     req.CampaignID,
		CityID:         req.CityID,
		Classification: req.Classification,
		LineNumber:     req.LineNumber,
		Status:         status,
		CallID:         req.CallID,
		Notes:          req.Notes,
	}

	// RETURNING yields no row when ON CONFLICT skipped the insert.
	err = tx.QueryRow(ctx, `
		INSERT INTO service_requests
			(id, caller_phone, campaign_id, city_id, classification, line_number, status, call_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (call_id) DO NOTHING
		RETURNING created_at, updated_at
	`, r.ID, r.CallerPhone, r.CampaignID, r.CityID, string(r.Classification), r.LineNumber,
		string(r.Status), r.CallID, r.Notes).Scan(&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return models.ServiceRequest{}, intake.ErrConflict
	}
	if err != nil {
		return models.ServiceRequest{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return models.ServiceRequest{}, intake.ErrConflict
		}
		return models.ServiceRequest{}, err
	}
	return r, nil
}

// FindCampaignByLine resolves the campaign bound to a dialed line, or nil.
func (p *PostgresStore) FindCampaignByLine(ctx context.Context, line string) (*models.Campaign, error) {
	var c models.Campaign
	err := p.db.QueryRow(ctx, `
		SELECT id, name, city_id, line_number
		FROM campaigns
		WHERE line_number = $1
	`, line).Scan(&c.ID, &c.Name, &c.CityID, &c.LineNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetRequest loads one request by id.
func (p *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (models.ServiceRequest, error) {
	r, err := scanRequest(p.db.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM service_requests
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ServiceRequest{}, ErrNotFound
	}
	return r, err
}

// UpdateRequestStatus moves a request to status and returns the updated row.
func (p *PostgresStore) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) (models.ServiceRequest, error) {
	r, err := scanRequest(p.db.QueryRow(ctx, `
		UPDATE service_requests
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+requestColumns,
		id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ServiceRequest{}, ErrNotFound
	}
	return r, err
}

// ListRequests returns requests matching f, newest first.
func (p *PostgresStore) ListRequests(ctx context.Context, f models.RequestFilter) ([]models.ServiceRequest, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	rows, err := p.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM service_requests
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::bigint IS NULL OR campaign_id = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at <  $4)
		ORDER BY created_at DESC, id
		LIMIT $5 OFFSET $6
	`, status, f.CampaignID, f.From, f.To, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ServiceRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRequests returns request counts by classification for the window
// [from,to). A nil campaignID counts every campaign.
// Using a half-open interval avoids double counting at window boundaries.
func (p *PostgresStore) CountRequests(
	ctx context.Context,
	from time.Time,
	to time.Time,
	campaignID *int64,
) (models.RequestCounts, error) {

	var c models.RequestCounts
	err := p.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE classification = 'first_time'),
		       COUNT(*) FILTER (WHERE classification = 'repeat')
		FROM service_requests
		WHERE created_at >= $1
		  AND created_at <  $2
		  AND ($3::bigint IS NULL OR campaign_id = $3)
	`, from, to, campaignID).Scan(&c.Total, &c.FirstTime, &c.Repeat)

	return c, err
}

// RecordUnresolved keeps an event the gate could not process for operator
// follow-up.
func (p *PostgresStore) RecordUnresolved(ctx context.Context, ev models.UnresolvedEvent) error {
	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}
	_, err := p.db.Exec(ctx, `
		INSERT INTO unresolved_call_events
			(call_id, caller_number, line_number, call_state, payload, error, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.CallID, ev.CallerNumber, ev.LineNumber, ev.State, ev.Payload, ev.Error, receivedAt)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
