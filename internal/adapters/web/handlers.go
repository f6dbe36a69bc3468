package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/irons28/warehouse-tracker-all4/internal/app"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// Pallet actions — one endpoint per ledger action.
		r.Post("/pallets/check-in", h.checkIn)
		r.Post("/pallets/move", h.move)
		r.Post("/pallets/partial-remove", h.partialRemove)
		r.Post("/pallets/units-remove", h.unitsRemove)
		r.Post("/pallets/check-out", h.checkOut)
		r.Get("/pallets/{id}", h.getPallet)
		r.Get("/pallets/{id}/history", h.palletHistory)

		// Occupancy — snapshot for the Sheets-sync poller, replay for ranges.
		r.Get("/occupancy/active", h.activeOccupancy)
		r.Get("/occupancy", h.computeOccupancy)

		// Billing.
		r.Post("/invoices/preview", h.previewInvoice)
		r.Post("/invoices", h.generateInvoice)
		r.Get("/invoices", h.listInvoices)
		r.Get("/invoices/{id}", h.getInvoice)
		r.Post("/invoices/{id}/status", h.setInvoiceStatus)
		r.Post("/invoices/{id}/payments", h.recordPayment)

		// Rates.
		r.Get("/rates", h.listRates)
		r.Get("/rates/{customer}", h.getRate)
		r.Put("/rates/{customer}", h.upsertRate)
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// idempotencyKey reads the Idempotency-Key header, falling back to the value
// already parsed from the request body.
func idempotencyKey(r *http.Request, bodyKey string) string {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		return key
	}
	return bodyKey
}
