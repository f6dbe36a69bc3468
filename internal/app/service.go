package app

import (
	"context"

	"github.com/irons28/warehouse-tracker-all4/internal/core"
)

// ApplicationService is the single interface all adapters call. It decouples
// transport from the core: handlers parse and render, this layer coordinates
// services, and the core enforces the ledger's invariants.
type ApplicationService interface {
	// CheckIn creates a new active pallet entry from a scan.
	CheckIn(ctx context.Context, req CheckInRequest) (*MutationResult, error)

	// Move relocates an active pallet to another location.
	Move(ctx context.Context, req MoveRequest) (*MutationResult, error)

	// PartialRemove draws down whole pallets from an entry.
	PartialRemove(ctx context.Context, req PartialRemoveRequest) (*MutationResult, error)

	// UnitsRemove draws down tracked units from a pallet.
	UnitsRemove(ctx context.Context, req UnitsRemoveRequest) (*MutationResult, error)

	// CheckOut removes an active pallet entirely.
	CheckOut(ctx context.Context, req CheckOutRequest) (*MutationResult, error)

	// GetPallet returns the current state of one pallet by id.
	GetPallet(ctx context.Context, id string) (*PalletResult, error)

	// GetPalletHistory returns a pallet's full ledger history in append order.
	GetPalletHistory(ctx context.Context, id string) (*HistoryResult, error)

	// ListActiveOccupancy returns a snapshot of every active pallet.
	// Served from the occupancy cache when warm; the Sheets-sync collaborator
	// polls this endpoint.
	ListActiveOccupancy(ctx context.Context) (*OccupancyListResult, error)

	// ComputeOccupancy replays the ledger for a customer over a date range.
	ComputeOccupancy(ctx context.Context, customer, startDate, endDate string) (*core.OccupancyResult, error)

	// PreviewInvoice computes invoice figures without persisting.
	PreviewInvoice(ctx context.Context, req InvoiceRequest) (*core.InvoicePreview, error)

	// GenerateInvoice computes and persists a DRAFT invoice.
	GenerateInvoice(ctx context.Context, req InvoiceRequest) (*core.Invoice, error)

	// GetInvoice returns one invoice with its payments.
	GetInvoice(ctx context.Context, id int64) (*core.Invoice, error)

	// ListInvoices returns invoices newest-first, optionally for one customer.
	ListInvoices(ctx context.Context, customer string) ([]core.Invoice, error)

	// SetInvoiceStatus applies a manual invoice status transition.
	SetInvoiceStatus(ctx context.Context, id int64, status string) (*core.Invoice, error)

	// RecordPayment records a payment against an invoice.
	RecordPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)

	// GetRate returns a customer's stored billing rate.
	GetRate(ctx context.Context, customer string) (*core.CustomerRate, error)

	// UpsertRate creates or replaces a customer's billing rate.
	UpsertRate(ctx context.Context, req RateRequest) (*core.CustomerRate, error)

	// ListRates returns all configured billing rates.
	ListRates(ctx context.Context) ([]core.CustomerRate, error)
}
