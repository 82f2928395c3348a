// Package directory defines the tenant directory port (interface).
package directory

import (
	"context"

	"github.com/pagebase/pagebase/internal/domain/tenant"
)

// Directory is the port interface for the durable tenant store.
// Lookup methods return domain.ErrNotFound when no tenant matches.
type Directory interface {
	// FindByAPIKey returns the active tenant holding the given API key.
	FindByAPIKey(ctx context.Context, apiKey string) (*tenant.Tenant, error)

	// FindByHost returns the active tenant whose subdomain equals sub or
	// whose custom domain equals host.
	FindByHost(ctx context.Context, sub, host string) (*tenant.Tenant, error)

	// FindByID returns the tenant with the given id regardless of status.
	FindByID(ctx context.Context, id string) (*tenant.Tenant, error)

	// UpdateUsage applies a partial, last-write-wins update of the
	// advisory usage counters.
	UpdateUsage(ctx context.Context, id string, u tenant.UsageUpdate) error

	// Create inserts a new tenant record.
	Create(ctx context.Context, t *tenant.Tenant) error

	// UpdateStatus transitions the tenant's account status.
	UpdateStatus(ctx context.Context, id string, status tenant.Status) error

	// UpdateLimits replaces the tenant's quota set.
	UpdateLimits(ctx context.Context, id string, l tenant.Limits) error

	// List returns all tenants ordered by creation time.
	List(ctx context.Context) ([]tenant.Tenant, error)

	// CountByStatus returns the number of tenants per account status.
	CountByStatus(ctx context.Context) (map[tenant.Status]int, error)
}
