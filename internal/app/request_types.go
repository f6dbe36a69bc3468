package app

import "github.com/shopspring/decimal"

// ActorInput identifies who performed a scan; filled by the auth layer.
type ActorInput struct {
	ScannedBy string `json:"scanned_by"`
	ActorID   string `json:"actor_id"`
	SessionID string `json:"session_id"`
}

// PalletRefInput targets a pallet by id, or by product code when the scanner
// only read the product barcode.
type PalletRefInput struct {
	PalletID  string `json:"pallet_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
}

type CheckInRequest struct {
	PalletID        string     `json:"pallet_id"`
	CustomerName    string     `json:"customer_name"`
	ProductID       string     `json:"product_id"`
	Location        string     `json:"location"`
	PalletQuantity  int        `json:"pallet_quantity"`
	ProductQuantity int        `json:"product_quantity"`
	Notes           string     `json:"notes"`
	Actor           ActorInput `json:"actor"`
	IdempotencyKey  string     `json:"idempotency_key,omitempty"`
}

type MoveRequest struct {
	Ref            PalletRefInput `json:"ref"`
	ToLocation     string         `json:"to_location"`
	Notes          string         `json:"notes"`
	Actor          ActorInput     `json:"actor"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type PartialRemoveRequest struct {
	Ref            PalletRefInput `json:"ref"`
	Quantity       int            `json:"quantity"`
	Notes          string         `json:"notes"`
	Actor          ActorInput     `json:"actor"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type UnitsRemoveRequest struct {
	Ref            PalletRefInput `json:"ref"`
	Units          int            `json:"units"`
	Notes          string         `json:"notes"`
	Actor          ActorInput     `json:"actor"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type CheckOutRequest struct {
	Ref            PalletRefInput `json:"ref"`
	Notes          string         `json:"notes"`
	Actor          ActorInput     `json:"actor"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// RateOverridesInput mirrors core.RateOverrides with string dates kept out —
// decimals arrive as JSON numbers or strings, both of which
// shopspring/decimal unmarshals.
type RateOverridesInput struct {
	RatePerPalletWeek    *decimal.Decimal `json:"rate_per_pallet_week,omitempty"`
	HandlingFeeFlat      *decimal.Decimal `json:"handling_fee_flat,omitempty"`
	HandlingFeePerPallet *decimal.Decimal `json:"handling_fee_per_pallet,omitempty"`
	PaymentTermsDays     *int             `json:"payment_terms_days,omitempty"`
	Currency             *string          `json:"currency,omitempty"`
}

// InvoiceRequest covers both preview and generate. Dates are YYYY-MM-DD.
type InvoiceRequest struct {
	CustomerName string              `json:"customer_name"`
	StartDate    string              `json:"start_date"`
	EndDate      string              `json:"end_date"`
	Overrides    *RateOverridesInput `json:"overrides,omitempty"`
}

// PaymentRequest records one payment. PaidAt is optional YYYY-MM-DD or
// RFC 3339; empty means now.
type PaymentRequest struct {
	InvoiceID      int64           `json:"invoice_id"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note"`
	PaidAt         string          `json:"paid_at,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type RateRequest struct {
	CustomerName         string          `json:"customer_name"`
	RatePerPalletWeek    decimal.Decimal `json:"rate_per_pallet_week"`
	HandlingFeeFlat      decimal.Decimal `json:"handling_fee_flat"`
	HandlingFeePerPallet decimal.Decimal `json:"handling_fee_per_pallet"`
	PaymentTermsDays     int             `json:"payment_terms_days"`
	Currency             string          `json:"currency"`
}
