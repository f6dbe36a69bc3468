package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action identifies the kind of state transition recorded in the ledger.
type Action string

const (
	ActionCheckIn       Action = "CHECK_IN"
	ActionMove          Action = "MOVE"
	ActionPartialRemove Action = "PARTIAL_REMOVE"
	ActionUnitsRemove   Action = "UNITS_REMOVE"
	ActionCheckOut      Action = "CHECK_OUT"
)

type PalletStatus string

const (
	PalletActive  PalletStatus = "active"
	PalletRemoved PalletStatus = "removed"
)

// Pallet is the current-state row for one pallet entry. It is a cache
// derivable from the ledger; the MutationService is its sole writer.
// Version is the optimistic-concurrency token: every successful mutation
// increments it, and updates are conditioned on the version the caller read.
type Pallet struct {
	ID              string       `json:"id"`
	CustomerName    string       `json:"customer_name"`
	ProductID       string       `json:"product_id"`
	Location        string       `json:"location"`
	PalletQuantity  int          `json:"pallet_quantity"`
	ProductQuantity int          `json:"product_quantity"` // units per pallet, 0 = untracked
	CurrentUnits    int          `json:"current_units"`
	Status          PalletStatus `json:"status"`
	Version         int          `json:"version"`
	DateAdded       time.Time    `json:"date_added"`
	DateRemoved     *time.Time   `json:"date_removed,omitempty"`
}

// Location is a physical slot. IsOccupied is a denormalized flag maintained
// transactionally alongside the owning pallet mutation, never on its own.
type Location struct {
	ID              string `json:"id"`
	CapacityPallets *int   `json:"capacity_pallets,omitempty"` // nil = unconstrained
	IsOccupied      bool   `json:"is_occupied"`
	LocationType    string `json:"location_type"`
}

// Actor describes who performed a scan, as supplied by the auth layer.
type Actor struct {
	ScannedBy string `json:"scanned_by"`
	ActorID   string `json:"actor_id"`
	SessionID string `json:"session_id"`
}

// LedgerRecord is one immutable state transition. SequenceID is assigned at
// append time and defines the authoritative total order for replay.
type LedgerRecord struct {
	SequenceID      int64     `json:"sequence_id"`
	PalletID        string    `json:"pallet_id"`
	CustomerName    string    `json:"customer_name"`
	ProductID       string    `json:"product_id"`
	Action          Action    `json:"action"`
	QuantityChanged int       `json:"quantity_changed"`
	QuantityBefore  int       `json:"quantity_before"`
	QuantityAfter   int       `json:"quantity_after"`
	Location        string    `json:"location"`
	Notes           string    `json:"notes"`
	Actor           Actor     `json:"actor"`
	IdempotencyKey  string    `json:"idempotency_key,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// CustomerRate is the per-customer billing configuration.
type CustomerRate struct {
	CustomerName         string          `json:"customer_name"`
	RatePerPalletWeek    decimal.Decimal `json:"rate_per_pallet_week"`
	HandlingFeeFlat      decimal.Decimal `json:"handling_fee_flat"`
	HandlingFeePerPallet decimal.Decimal `json:"handling_fee_per_pallet"`
	PaymentTermsDays     int             `json:"payment_terms_days"`
	Currency             string          `json:"currency"`
}

// RateOverrides overlays field-by-field onto a stored CustomerRate for one
// preview or generate call. Nil fields keep the stored value.
type RateOverrides struct {
	RatePerPalletWeek    *decimal.Decimal `json:"rate_per_pallet_week,omitempty"`
	HandlingFeeFlat      *decimal.Decimal `json:"handling_fee_flat,omitempty"`
	HandlingFeePerPallet *decimal.Decimal `json:"handling_fee_per_pallet,omitempty"`
	PaymentTermsDays     *int             `json:"payment_terms_days,omitempty"`
	Currency             *string          `json:"currency,omitempty"`
}

type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "DRAFT"
	InvoiceSent  InvoiceStatus = "SENT"
	InvoicePaid  InvoiceStatus = "PAID"
)

// Payment is one recorded payment against an invoice.
type Payment struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
	PaidAt    time.Time       `json:"paid_at"`
}

// Invoice is created once from a replay snapshot and a resolved rate, then
// mutated only by status transitions and payment recordings.
type Invoice struct {
	ID                int64           `json:"id"`
	CustomerName      string          `json:"customer_name"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	PalletDays        int             `json:"pallet_days"`
	HandledPallets    int             `json:"handled_pallets"`
	RatePerPalletWeek decimal.Decimal `json:"rate_per_pallet_week"`
	BaseTotal         decimal.Decimal `json:"base_total"`
	HandlingTotal     decimal.Decimal `json:"handling_total"`
	Total             decimal.Decimal `json:"total"`
	Currency          string          `json:"currency"`
	DueDate           time.Time       `json:"due_date"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	Status            InvoiceStatus   `json:"status"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	Payments          []Payment       `json:"payments"`
}

// InvoicePreview carries the same figures as an Invoice without persistence.
type InvoicePreview struct {
	CustomerName      string          `json:"customer_name"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	PalletDays        int             `json:"pallet_days"`
	DaysInRange       int             `json:"days_in_range"`
	HandledPallets    int             `json:"handled_pallets"`
	RatePerPalletWeek decimal.Decimal `json:"rate_per_pallet_week"`
	BaseTotal         decimal.Decimal `json:"base_total"`
	HandlingTotal     decimal.Decimal `json:"handling_total"`
	Total             decimal.Decimal `json:"total"`
	Currency          string          `json:"currency"`
	DueDate           time.Time       `json:"due_date"`
}

// OccupancyResult is the output of one ledger replay over a date range.
type OccupancyResult struct {
	PalletDays     int `json:"pallet_days"`
	DaysInRange    int `json:"days_in_range"`
	HandledPallets int `json:"handled_pallets"`
}
