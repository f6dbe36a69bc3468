package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/irons28/warehouse-tracker-all4/internal/core"
)

func TestWriteServiceError_StatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		generic bool // body must not leak the underlying error
	}{
		{"invalid input", fmt.Errorf("quantity must be positive: %w", core.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT", false},
		{"not found", fmt.Errorf("pallet PAL-1: %w", core.ErrNotFound), http.StatusNotFound, "NOT_FOUND", false},
		{"conflict", fmt.Errorf("location A-01 is occupied: %w", core.ErrConflict), http.StatusConflict, "CONFLICT", false},
		{"internal", fmt.Errorf("failed to begin transaction: %w: %w", core.ErrInternal, errors.New("connection reset")), http.StatusInternalServerError, "INTERNAL_ERROR", true},
		{"unclassified", errors.New("something odd"), http.StatusInternalServerError, "INTERNAL_ERROR", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/pallets/check-in", nil)
			writeServiceError(rec, req, tc.err)

			if rec.Code != tc.status {
				t.Errorf("status: want %d, got %d", tc.status, rec.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if resp.Code != tc.code {
				t.Errorf("code: want %s, got %s", tc.code, resp.Code)
			}
			if tc.generic && resp.Error != "internal server error" {
				t.Errorf("internal detail leaked to client: %q", resp.Error)
			}
			if !tc.generic && resp.Error != tc.err.Error() {
				t.Errorf("error message: want %q, got %q", tc.err.Error(), resp.Error)
			}
		})
	}
}
