package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/irons28/warehouse-tracker-all4/internal/app"
)

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	var req app.CheckInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := h.svc.CheckIn(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var req app.MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := h.svc.Move(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) partialRemove(w http.ResponseWriter, r *http.Request) {
	var req app.PartialRemoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := h.svc.PartialRemove(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) unitsRemove(w http.ResponseWriter, r *http.Request) {
	var req app.UnitsRemoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := h.svc.UnitsRemove(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) checkOut(w http.ResponseWriter, r *http.Request) {
	var req app.CheckOutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := h.svc.CheckOut(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getPallet(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetPallet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) palletHistory(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetPalletHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) activeOccupancy(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListActiveOccupancy(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) computeOccupancy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.ComputeOccupancy(r.Context(), q.Get("customer"), q.Get("start"), q.Get("end"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
