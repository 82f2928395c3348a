package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagebase/pagebase/internal/domain"
	"github.com/pagebase/pagebase/internal/domain/tenant"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

const tenantColumns = `id, name, subdomain, custom_domain, api_key, api_secret_hash,
	plan, status, max_users, max_storage_mb, max_api_requests_per_hour,
	usage_user_count, usage_storage_mb, usage_api_requests_this_hour, usage_last_api_request_at,
	settings, owner_email, billing_email, created_at, updated_at`

// Store implements directory.Directory using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindByAPIKey returns the active tenant holding the given API key.
func (s *Store) FindByAPIKey(ctx context.Context, apiKey string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE api_key = $1 AND status = $2`,
		apiKey, tenant.StatusActive)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "find tenant by api key")
	}
	return t, nil
}

// FindByHost returns the active tenant whose subdomain equals sub or
// whose custom domain equals host.
func (s *Store) FindByHost(ctx context.Context, sub, host string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE status = $1 AND (subdomain = $2 OR custom_domain = $3)`,
		tenant.StatusActive, sub, host)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "find tenant by host %s", host)
	}
	return t, nil
}

// FindByID returns the tenant with the given id regardless of status.
func (s *Store) FindByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "find tenant %s", id)
	}
	return t, nil
}

// UpdateUsage applies a partial, last-write-wins update of the advisory
// usage counters. The updated_at column is left untouched so telemetry
// writes do not masquerade as administrative changes.
func (s *Store) UpdateUsage(ctx context.Context, id string, u tenant.UsageUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants
		 SET usage_api_requests_this_hour = $2, usage_last_api_request_at = $3
		 WHERE id = $1`,
		id, u.APIRequestsThisHour, nullTime(u.LastAPIRequestAt))
	return execExpectOne(tag, err, "update usage for tenant %s", id)
}

// Create inserts a new tenant record.
func (s *Store) Create(ctx context.Context, t *tenant.Tenant) error {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, subdomain, custom_domain, api_key, api_secret_hash,
			plan, status, max_users, max_storage_mb, max_api_requests_per_hour,
			settings, owner_email, billing_email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.Name, t.Subdomain, nullIfEmpty(t.CustomDomain), t.APIKey, t.APISecretHash,
		t.Plan, t.Status, t.Limits.MaxUsers, t.Limits.MaxStorageMB, t.Limits.MaxAPIRequestsPerHour,
		settings, t.OwnerEmail, nullIfEmpty(t.BillingEmail), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("create tenant %s: %w", t.Subdomain, domain.ErrConflict)
		}
		return fmt.Errorf("create tenant %s: %w", t.Subdomain, err)
	}
	return nil
}

// UpdateStatus transitions the tenant's account status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status tenant.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return execExpectOne(tag, err, "update status for tenant %s", id)
}

// UpdateLimits replaces the tenant's quota set.
func (s *Store) UpdateLimits(ctx context.Context, id string, l tenant.Limits) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants
		 SET max_users = $2, max_storage_mb = $3, max_api_requests_per_hour = $4, updated_at = now()
		 WHERE id = $1`,
		id, l.MaxUsers, l.MaxStorageMB, l.MaxAPIRequestsPerHour)
	return execExpectOne(tag, err, "update limits for tenant %s", id)
}

// List returns all tenants ordered by creation time.
func (s *Store) List(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// CountByStatus returns the number of tenants per account status.
func (s *Store) CountByStatus(ctx context.Context) (map[tenant.Status]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*) FROM tenants GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tenants: %w", err)
	}
	defer rows.Close()

	counts := make(map[tenant.Status]int)
	for rows.Next() {
		var status tenant.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

func scanTenant(row scannable) (*tenant.Tenant, error) {
	var t tenant.Tenant
	var customDomain, billingEmail sql.NullString
	var lastRequestAt sql.NullTime
	var settings []byte

	err := row.Scan(
		&t.ID, &t.Name, &t.Subdomain, &customDomain, &t.APIKey, &t.APISecretHash,
		&t.Plan, &t.Status, &t.Limits.MaxUsers, &t.Limits.MaxStorageMB, &t.Limits.MaxAPIRequestsPerHour,
		&t.Usage.UserCount, &t.Usage.StorageMB, &t.Usage.APIRequestsThisHour, &lastRequestAt,
		&settings, &t.OwnerEmail, &billingEmail, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.CustomDomain = customDomain.String
	t.BillingEmail = billingEmail.String
	if lastRequestAt.Valid {
		t.Usage.LastAPIRequestAt = lastRequestAt.Time
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return &t, nil
}

// nullIfEmpty returns nil for empty strings (for nullable columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime converts a zero time to nil for nullable DB columns.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne verifies that an Exec affected exactly one row. If not
// (and err is nil), it returns domain.ErrNotFound with the given message.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", domain.ErrNotFound)
	}
	return nil
}
