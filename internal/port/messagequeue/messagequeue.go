// Package messagequeue defines the message queue port (interface).
package messagequeue

import (
	"context"
	"time"
)

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects for tenant lifecycle and accounting events.
const (
	SubjectTenantUsage = "tenants.usage" // advisory usage snapshots from admitted requests
	SubjectTenantAudit = "tenants.audit" // provisioning and status-change audit trail
)

// Audit actions carried in AuditPayload.
const (
	AuditTenantCreated   = "tenant.created"
	AuditTenantSuspended = "tenant.suspended"
	AuditTenantActivated = "tenant.activated"
	AuditLimitsUpdated   = "tenant.limits_updated"
)

// UsagePayload is the schema for tenants.usage messages.
type UsagePayload struct {
	TenantID         string    `json:"tenant_id"`
	RequestsThisHour int       `json:"requests_this_hour"`
	At               time.Time `json:"at"`
}

// AuditPayload is the schema for tenants.audit messages.
type AuditPayload struct {
	Action   string    `json:"action"`
	TenantID string    `json:"tenant_id"`
	At       time.Time `json:"at"`
}
