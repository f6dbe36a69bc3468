package app

import "github.com/irons28/warehouse-tracker-all4/internal/core"

// MutationResult is returned by all five pallet actions.
type MutationResult struct {
	Pallet  *core.Pallet `json:"pallet"`
	Deduped bool         `json:"deduped"`
}

// PalletResult is returned by GetPallet.
type PalletResult struct {
	Pallet *core.Pallet `json:"pallet"`
}

// HistoryResult is returned by GetPalletHistory.
type HistoryResult struct {
	PalletID string              `json:"pallet_id"`
	Records  []core.LedgerRecord `json:"records"`
}

// OccupancyListResult is returned by ListActiveOccupancy.
type OccupancyListResult struct {
	Pallets []core.Pallet `json:"pallets"`
	Cached  bool          `json:"cached"`
}

// PaymentResult is returned by RecordPayment.
type PaymentResult struct {
	Invoice *core.Invoice `json:"invoice"`
	Deduped bool          `json:"deduped"`
}
