package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var sevenDays = decimal.NewFromInt(7)

// BillingService turns replay output and a customer's rate configuration
// into invoices, and tracks each invoice's payment state machine. It is the
// sole writer of the invoices and invoice_payments tables.
type BillingService struct {
	pool      *pgxpool.Pool
	occupancy *OccupancyService
	rates     *RateService
	now       func() time.Time
}

func NewBillingService(pool *pgxpool.Pool, occupancy *OccupancyService, rates *RateService) *BillingService {
	return &BillingService{pool: pool, occupancy: occupancy, rates: rates, now: time.Now}
}

// WithClock injects the timestamp source for tests.
func (s *BillingService) WithClock(now func() time.Time) *BillingService {
	s.now = now
	return s
}

// resolveRate overlays per-call overrides field-by-field onto the stored
// customer rate. Overrides win; the merged rate is validated as a whole.
func (s *BillingService) resolveRate(ctx context.Context, customer string, overrides *RateOverrides) (*CustomerRate, error) {
	rate, err := s.rates.GetRate(ctx, customer)
	if err != nil {
		return nil, err
	}
	if overrides != nil {
		if overrides.RatePerPalletWeek != nil {
			rate.RatePerPalletWeek = *overrides.RatePerPalletWeek
		}
		if overrides.HandlingFeeFlat != nil {
			rate.HandlingFeeFlat = *overrides.HandlingFeeFlat
		}
		if overrides.HandlingFeePerPallet != nil {
			rate.HandlingFeePerPallet = *overrides.HandlingFeePerPallet
		}
		if overrides.PaymentTermsDays != nil {
			rate.PaymentTermsDays = *overrides.PaymentTermsDays
		}
		if overrides.Currency != nil {
			rate.Currency = *overrides.Currency
		}
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}
	return rate, nil
}

// Validate enforces the billing bounds: every fee non-negative, payment
// terms within 0..365 days, and a currency present.
func (rate *CustomerRate) Validate() error {
	if rate.RatePerPalletWeek.IsNegative() {
		return fmt.Errorf("rate per pallet week cannot be negative: %w", ErrInvalidInput)
	}
	if rate.HandlingFeeFlat.IsNegative() {
		return fmt.Errorf("flat handling fee cannot be negative: %w", ErrInvalidInput)
	}
	if rate.HandlingFeePerPallet.IsNegative() {
		return fmt.Errorf("per-pallet handling fee cannot be negative: %w", ErrInvalidInput)
	}
	if rate.PaymentTermsDays < 0 || rate.PaymentTermsDays > 365 {
		return fmt.Errorf("payment terms must be 0..365 days, got %d: %w", rate.PaymentTermsDays, ErrInvalidInput)
	}
	if rate.Currency == "" {
		return fmt.Errorf("currency is required: %w", ErrInvalidInput)
	}
	return nil
}

// BuildPreview computes invoice figures from a replay result and a resolved
// rate. Each subtotal is rounded to 2dp on its own so repeated previews never
// accumulate floating drift into the total.
func BuildPreview(customer string, start, end time.Time, occ *OccupancyResult, rate *CustomerRate) *InvoicePreview {
	palletWeeks := decimal.NewFromInt(int64(occ.PalletDays)).Div(sevenDays)
	baseTotal := palletWeeks.Mul(rate.RatePerPalletWeek).Round(2)
	handledPallets := decimal.NewFromInt(int64(occ.HandledPallets))
	handlingTotal := rate.HandlingFeeFlat.Add(rate.HandlingFeePerPallet.Mul(handledPallets)).Round(2)

	return &InvoicePreview{
		CustomerName:      customer,
		StartDate:         dayStart(start),
		EndDate:           dayStart(end),
		PalletDays:        occ.PalletDays,
		DaysInRange:       occ.DaysInRange,
		HandledPallets:    occ.HandledPallets,
		RatePerPalletWeek: rate.RatePerPalletWeek,
		BaseTotal:         baseTotal,
		HandlingTotal:     handlingTotal,
		Total:             baseTotal.Add(handlingTotal),
		Currency:          rate.Currency,
		DueDate:           dayStart(end).AddDate(0, 0, rate.PaymentTermsDays),
	}
}

// Preview computes an invoice for the range without persisting anything.
func (s *BillingService) Preview(ctx context.Context, customer string, start, end time.Time, overrides *RateOverrides) (*InvoicePreview, error) {
	rate, err := s.resolveRate(ctx, customer, overrides)
	if err != nil {
		return nil, err
	}
	occ, err := s.occupancy.ComputeOccupancy(ctx, customer, start, end)
	if err != nil {
		return nil, err
	}
	return BuildPreview(customer, start, end, occ, rate), nil
}

// Generate computes an invoice for the range and persists it in DRAFT state.
// The stored row is a snapshot: later ledger appends never change it.
func (s *BillingService) Generate(ctx context.Context, customer string, start, end time.Time, overrides *RateOverrides) (*Invoice, error) {
	preview, err := s.Preview(ctx, customer, start, end, overrides)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		CustomerName:      preview.CustomerName,
		StartDate:         preview.StartDate,
		EndDate:           preview.EndDate,
		PalletDays:        preview.PalletDays,
		HandledPallets:    preview.HandledPallets,
		RatePerPalletWeek: preview.RatePerPalletWeek,
		BaseTotal:         preview.BaseTotal,
		HandlingTotal:     preview.HandlingTotal,
		Total:             preview.Total,
		Currency:          preview.Currency,
		DueDate:           preview.DueDate,
		AmountPaid:        decimal.Zero,
		Status:            InvoiceDraft,
		Payments:          []Payment{},
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO invoices (customer_name, start_date, end_date, pallet_days, handled_pallets,
			rate_per_pallet_week, base_total, handling_total, total, currency, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`, inv.CustomerName, inv.StartDate, inv.EndDate, inv.PalletDays, inv.HandledPallets,
		inv.RatePerPalletWeek, inv.BaseTotal, inv.HandlingTotal, inv.Total, inv.Currency, inv.DueDate,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}
	return inv, nil
}

const invoiceColumns = `id, customer_name, start_date, end_date, pallet_days, handled_pallets,
	rate_per_pallet_week, base_total, handling_total, total, currency, due_date,
	amount_paid, status, sent_at, paid_at, created_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.CustomerName, &inv.StartDate, &inv.EndDate, &inv.PalletDays, &inv.HandledPallets,
		&inv.RatePerPalletWeek, &inv.BaseTotal, &inv.HandlingTotal, &inv.Total, &inv.Currency, &inv.DueDate,
		&inv.AmountPaid, &inv.Status, &inv.SentAt, &inv.PaidAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Payments = []Payment{}
	return &inv, nil
}

func (s *BillingService) loadPayments(ctx context.Context, q pgxRowsQuerier, inv *Invoice) error {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, amount, note, paid_at FROM invoice_payments
		WHERE invoice_id = $1 ORDER BY paid_at, id
	`, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to query payments for invoice %d: %w", inv.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Note, &p.PaidAt); err != nil {
			return fmt.Errorf("failed to scan payment: %w", err)
		}
		inv.Payments = append(inv.Payments, p)
	}
	return rows.Err()
}

type pgxRowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// GetInvoice returns one invoice with its ordered payment list.
func (s *BillingService) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoice %d: %w", id, err)
	}
	if err := s.loadPayments(ctx, s.pool, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices returns invoices newest-first, optionally for one customer.
func (s *BillingService) ListInvoices(ctx context.Context, customer string) ([]Invoice, error) {
	sql := `SELECT ` + invoiceColumns + ` FROM invoices ORDER BY created_at DESC, id DESC`
	args := []any{}
	if customer != "" {
		sql = `SELECT ` + invoiceColumns + ` FROM invoices WHERE customer_name = $1 ORDER BY created_at DESC, id DESC`
		args = append(args, customer)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

// SetStatus applies a manual status transition. PAID is terminal for the
// state machine itself but an operator may revert to DRAFT or SENT, which
// clears the corresponding timestamps.
func (s *BillingService) SetStatus(ctx context.Context, id int64, status InvoiceStatus) (*Invoice, error) {
	switch status {
	case InvoiceDraft, InvoiceSent, InvoicePaid:
	default:
		return nil, fmt.Errorf("unknown invoice status %q: %w", status, ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w: %w", ErrInternal, err)
	}
	defer tx.Rollback(ctx)

	inv, err := scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock invoice %d: %w", id, err)
	}

	now := s.now()
	switch status {
	case InvoiceDraft:
		inv.SentAt, inv.PaidAt = nil, nil
	case InvoiceSent:
		if inv.SentAt == nil {
			inv.SentAt = &now
		}
		inv.PaidAt = nil
	case InvoicePaid:
		if inv.SentAt == nil {
			inv.SentAt = &now
		}
		if inv.PaidAt == nil {
			inv.PaidAt = &now
		}
	}
	inv.Status = status

	_, err = tx.Exec(ctx, `
		UPDATE invoices SET status = $2, sent_at = $3, paid_at = $4 WHERE id = $1
	`, id, inv.Status, inv.SentAt, inv.PaidAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice %d status: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w: %w", ErrInternal, err)
	}

	if err := s.loadPayments(ctx, s.pool, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// PaymentResult is the outcome of RecordPayment. Deduped means the
// idempotency key had already been applied and the invoice is unchanged.
type PaymentResult struct {
	Invoice *Invoice `json:"invoice"`
	Deduped bool     `json:"deduped"`
}

// RecordPayment appends a payment to an invoice and advances its status:
// reaching the total marks it PAID, and a first payment on a DRAFT invoice
// advances it to SENT. The optional idempotency key makes network retries
// safe; a repeat key returns the current invoice without re-applying.
func (s *BillingService) RecordPayment(ctx context.Context, id int64, amount decimal.Decimal, note string, paidAt time.Time, idempotencyKey string) (*PaymentResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s: %w", amount, ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w: %w", ErrInternal, err)
	}
	defer tx.Rollback(ctx)

	inv, err := scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock invoice %d: %w", id, err)
	}

	now := s.now()
	if paidAt.IsZero() {
		paidAt = now
	}

	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}
	var paymentID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO invoice_payments (invoice_id, amount, note, idempotency_key, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING id
	`, id, amount, note, key, paidAt).Scan(&paymentID)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		current, err := s.GetInvoice(ctx, id)
		if err != nil {
			return nil, err
		}
		return &PaymentResult{Invoice: current, Deduped: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	inv.AmountPaid = inv.AmountPaid.Add(amount)
	if inv.AmountPaid.GreaterThanOrEqual(inv.Total) {
		inv.Status = InvoicePaid
		if inv.SentAt == nil {
			inv.SentAt = &now
		}
		inv.PaidAt = &paidAt
	} else if inv.Status == InvoiceDraft {
		inv.Status = InvoiceSent
		inv.SentAt = &now
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoices SET amount_paid = $2, status = $3, sent_at = $4, paid_at = $5 WHERE id = $1
	`, id, inv.AmountPaid, inv.Status, inv.SentAt, inv.PaidAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w: %w", ErrInternal, err)
	}

	if err := s.loadPayments(ctx, s.pool, inv); err != nil {
		return nil, err
	}
	return &PaymentResult{Invoice: inv}, nil
}
