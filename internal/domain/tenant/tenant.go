// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import (
	"fmt"
	"regexp"
	"time"

	"github.com/pagebase/pagebase/internal/domain"
)

// Status of a tenant account.
type Status string

// Tenant statuses. Only active tenants are resolvable by the request path.
const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Plan identifies the pricing tier a tenant is on.
type Plan string

// Pricing plans.
const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// APIKeyPrefix is prepended to every generated tenant API key.
const APIKeyPrefix = "pb_"

// DefaultRateLimit is the hourly request limit applied when a tenant has none configured.
const DefaultRateLimit = 1000

// MaxSubdomainLength is the DNS label limit for tenant subdomains.
const MaxSubdomainLength = 63

// Limits holds the per-tenant resource quotas.
type Limits struct {
	MaxUsers              int `json:"max_users"`
	MaxStorageMB          int `json:"max_storage_mb"`
	MaxAPIRequestsPerHour int `json:"max_api_requests_per_hour"`
}

// Usage holds advisory usage counters. The persisted request counter
// mirrors the in-memory admission window and may lag it; enforcement
// never reads these values back.
type Usage struct {
	UserCount           int       `json:"user_count"`
	StorageMB           int       `json:"storage_mb"`
	APIRequestsThisHour int       `json:"api_requests_this_hour"`
	LastAPIRequestAt    time.Time `json:"last_api_request_at"`
}

// Settings holds tenant-configurable behavior flags.
type Settings struct {
	AllowSignup              bool   `json:"allow_signup"`
	RequireEmailVerification bool   `json:"require_email_verification"`
	DataRegion               string `json:"data_region"`
}

// Tenant represents an isolated customer organization with its own
// users, content, quota, and API keys.
type Tenant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Subdomain     string    `json:"subdomain"`
	CustomDomain  string    `json:"custom_domain,omitempty"`
	APIKey        string    `json:"api_key"`
	APISecretHash string    `json:"-"`
	Status        Status    `json:"status"`
	Plan          Plan      `json:"plan"`
	Limits        Limits    `json:"limits"`
	Usage         Usage     `json:"usage"`
	Settings      Settings  `json:"settings"`
	OwnerEmail    string    `json:"owner_email"`
	BillingEmail  string    `json:"billing_email,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RateLimit returns the hourly request limit, falling back to
// DefaultRateLimit when the tenant has no explicit limit.
func (t *Tenant) RateLimit() int {
	if t.Limits.MaxAPIRequestsPerHour > 0 {
		return t.Limits.MaxAPIRequestsPerHour
	}
	return DefaultRateLimit
}

// Active reports whether the tenant may be resolved for request handling.
func (t *Tenant) Active() bool { return t.Status == StatusActive }

// Suspended reports whether the tenant account is suspended.
func (t *Tenant) Suspended() bool { return t.Status == StatusSuspended }

// CreateRequest holds the fields required to provision a new tenant.
type CreateRequest struct {
	Name         string    `json:"name"`
	Subdomain    string    `json:"subdomain"`
	CustomDomain string    `json:"custom_domain,omitempty"`
	OwnerEmail   string    `json:"owner_email"`
	BillingEmail string    `json:"billing_email,omitempty"`
	Plan         Plan      `json:"plan,omitempty"`
	Settings     *Settings `json:"settings,omitempty"`
}

// UsageUpdate is a partial, last-write-wins update of the advisory
// usage counters.
type UsageUpdate struct {
	APIRequestsThisHour int
	LastAPIRequestAt    time.Time
}

// subdomainRegex matches a DNS label: lowercase alphanumeric with
// interior hyphens, at most 63 characters.
var subdomainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// reservedSubdomains cannot be claimed by tenants.
var reservedSubdomains = map[string]bool{
	"www": true, "api": true, "admin": true, "app": true, "mail": true,
	"ftp": true, "smtp": true, "pop": true, "imap": true, "localhost": true,
	"staging": true, "dev": true, "test": true, "demo": true, "sandbox": true,
	"beta": true, "alpha": true, "internal": true, "system": true, "root": true,
	"support": true, "help": true, "docs": true, "blog": true, "cdn": true,
	"static": true, "assets": true, "media": true, "files": true, "uploads": true,
}

// ValidateSubdomain checks the subdomain format and the reserved-word set.
func ValidateSubdomain(s string) error {
	if len(s) > MaxSubdomainLength || !subdomainRegex.MatchString(s) {
		return fmt.Errorf("%w: subdomain must be 1-63 lowercase letters, digits, or hyphens", domain.ErrValidation)
	}
	if reservedSubdomains[s] {
		return fmt.Errorf("%w: subdomain %q is reserved", domain.ErrValidation, s)
	}
	return nil
}

// PlanLimits returns the default quota set for a plan. Unknown plans
// get the free tier.
func PlanLimits(p Plan) Limits {
	switch p {
	case PlanStarter:
		return Limits{MaxUsers: 50, MaxStorageMB: 10_000, MaxAPIRequestsPerHour: 5000}
	case PlanPro:
		return Limits{MaxUsers: 200, MaxStorageMB: 50_000, MaxAPIRequestsPerHour: 20_000}
	case PlanEnterprise:
		return Limits{MaxUsers: 999_999, MaxStorageMB: 500_000, MaxAPIRequestsPerHour: 100_000}
	default:
		return Limits{MaxUsers: 10, MaxStorageMB: 1000, MaxAPIRequestsPerHour: 1000}
	}
}
