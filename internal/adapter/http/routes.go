package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the health and tenant administration routes.
// Tenant-scoped application routes are mounted by the caller behind the
// tenant middleware.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/api/health", h.Health)

	r.Route("/api/admin/tenants", func(r chi.Router) {
		r.Post("/", h.CreateTenant)
		r.Get("/", h.ListTenants)
		r.Get("/{id}", h.GetTenant)
		r.Post("/{id}/suspend", h.SuspendTenant)
		r.Post("/{id}/activate", h.ActivateTenant)
		r.Put("/{id}/limits", h.UpdateTenantLimits)
	})
}
