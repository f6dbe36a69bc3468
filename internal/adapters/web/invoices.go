package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/irons28/warehouse-tracker-all4/internal/app"
)

// invoiceID parses the {id} path parameter. Returns false when a response
// was already written.
func invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, "invalid invoice id", "INVALID_INPUT", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) previewInvoice(w http.ResponseWriter, r *http.Request) {
	var req app.InvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.PreviewInvoice(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	var req app.InvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.GenerateInvoice(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, res)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListInvoices(r.Context(), r.URL.Query().Get("customer"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.GetInvoice(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) setInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.SetInvoiceStatus(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var req app.PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.InvoiceID = id
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := h.svc.RecordPayment(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListRates(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getRate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetRate(r.Context(), chi.URLParam(r, "customer"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) upsertRate(w http.ResponseWriter, r *http.Request) {
	var req app.RateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CustomerName = chi.URLParam(r, "customer")

	res, err := h.svc.UpsertRate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
