/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in the access log
  2. Access log: One zerolog line per request
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the reception front-end

ROUTE GROUPS:
  /api/prescriptions/*   Prescription lifecycle
  /api/patients/*        Per-patient listing
  /api/catalog/*         Drug catalog and stock
  /api/inventory/*       Stock valuation
  /api/admin/*           Schema and monitor
  /api/scenarios/*       Demo scenarios
  /healthz               Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/clinicrx/serve.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLog(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Prescription routes
		r.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", h.CreatePrescription)
			r.Get("/{id}", h.GetPrescription)
			r.Patch("/{id}", h.UpdatePrescription)
			r.Delete("/{id}", h.DeletePrescription)
			r.Post("/{id}/finalize", h.FinalizePrescription)
			r.Post("/{id}/dispense", h.DispensePrescription)
			r.Post("/{id}/cancel", h.CancelPrescription)
			r.Get("/{id}/audit", h.GetAudit)
		})

		r.Get("/patients/{patientID}/prescriptions", h.ListPatientPrescriptions)

		// Catalog routes
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", h.ListCatalog)
			r.Get("/low-stock", h.ListLowStock)
			r.Get("/{code}", h.GetCatalogEntry)
			r.Put("/{code}", h.UpsertCatalogEntry)
			r.Post("/{code}/restock", h.Restock)
			r.Get("/{code}/receipts", h.ListReceipts)
		})

		r.Get("/inventory/value", h.InventoryValue)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/schema", h.EnsureSchema)
			r.Get("/low-stock", h.LowStockStatus)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// accessLog writes one structured line per request.
func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
