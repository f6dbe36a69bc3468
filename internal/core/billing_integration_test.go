package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/irons28/warehouse-tracker-all4/internal/core"
)

// billingFixture wires the full read path: mutations write the ledger, the
// occupancy service replays it, billing prices the result.
type billingFixture struct {
	mutations *core.MutationService
	occupancy *core.OccupancyService
	billing   *core.BillingService
	rates     *core.RateService
	clock     *time.Time
}

func newBillingFixture(pool *pgxpool.Pool) *billingFixture {
	store := core.NewLedgerStore(pool)
	clock := day(0)
	now := func() time.Time { return clock }
	mutations := core.NewMutationService(pool, store).WithDedupWindow(0).WithClock(func() time.Time { return clock })
	occupancy := core.NewOccupancyService(store)
	rates := core.NewRateService(pool)
	billing := core.NewBillingService(pool, occupancy, rates).WithClock(now)
	return &billingFixture{mutations: mutations, occupancy: occupancy, billing: billing, rates: rates, clock: &clock}
}

func (f *billingFixture) seedRate(t *testing.T) {
	t.Helper()
	_, err := f.rates.UpsertRate(context.Background(), testRate())
	if err != nil {
		t.Fatalf("failed to seed rate: %v", err)
	}
}

func TestOccupancy_EndToEnd(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	f := newBillingFixture(pool)
	ctx := context.Background()

	*f.clock = at(0, 9)
	if _, err := f.mutations.CheckIn(ctx, checkInParams("PAL-1", "A-01", 1), actor, ""); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	*f.clock = at(2, 9)
	if _, err := f.mutations.CheckIn(ctx, checkInParams("PAL-2", "A-02", 2), actor, ""); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	*f.clock = at(5, 9)
	if _, err := f.mutations.CheckOut(ctx, core.PalletRef{ID: "PAL-2"}, core.CheckOutParams{}, actor, ""); err != nil {
		t.Fatalf("check-out failed: %v", err)
	}

	res, err := f.occupancy.ComputeOccupancy(ctx, "Acme Foods", day(0), day(6))
	if err != nil {
		t.Fatalf("occupancy failed: %v", err)
	}
	// PAL-1: days 0..6 at 1. PAL-2: days 2,3,4 at 2.
	if want := 7 + 6; res.PalletDays != want {
		t.Errorf("expected %d pallet-days, got %d", want, res.PalletDays)
	}
	if res.HandledPallets != 3 {
		t.Errorf("expected 3 handled pallets, got %d", res.HandledPallets)
	}

	// Records after the range must not change its totals.
	*f.clock = at(10, 9)
	if _, err := f.mutations.CheckOut(ctx, core.PalletRef{ID: "PAL-1"}, core.CheckOutParams{}, actor, ""); err != nil {
		t.Fatalf("check-out failed: %v", err)
	}
	again, err := f.occupancy.ComputeOccupancy(ctx, "Acme Foods", day(0), day(6))
	if err != nil {
		t.Fatalf("occupancy failed: %v", err)
	}
	if *again != *res {
		t.Errorf("closed range changed after later records: %+v vs %+v", again, res)
	}
}

func TestBilling_GenerateInvoice(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	f := newBillingFixture(pool)
	f.seedRate(t)
	ctx := context.Background()

	*f.clock = at(0, 9)
	if _, err := f.mutations.CheckIn(ctx, checkInParams("PAL-1", "A-01", 1), actor, ""); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	inv, err := f.billing.Generate(ctx, "Acme Foods", day(0), day(6), nil)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	// 7 pallet-days = 1 week at 10.00, plus 1.00 flat and 0.50 for one
	// handled pallet.
	if got := inv.Total.StringFixed(2); got != "11.50" {
		t.Errorf("total: want 11.50, got %s", got)
	}
	if inv.PalletDays != 7 || inv.HandledPallets != 1 {
		t.Errorf("snapshot figures wrong: %d pallet-days, %d handled", inv.PalletDays, inv.HandledPallets)
	}
	if inv.Status != core.InvoiceDraft {
		t.Errorf("new invoice should be DRAFT, got %s", inv.Status)
	}
	if want := day(6).AddDate(0, 0, 14); !inv.DueDate.Equal(want) {
		t.Errorf("due date: want %s, got %s", want, inv.DueDate)
	}

	// The stored invoice is a snapshot: later activity never rewrites it.
	*f.clock = at(3, 9)
	if _, err := f.mutations.CheckIn(ctx, checkInParams("PAL-9", "A-02", 5), actor, ""); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	stored, err := f.billing.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice failed: %v", err)
	}
	if !stored.Total.Equal(inv.Total) || stored.PalletDays != inv.PalletDays {
		t.Errorf("stored invoice drifted: %+v", stored)
	}
}

func TestBilling_RateOverrides(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	f := newBillingFixture(pool)
	f.seedRate(t)
	ctx := context.Background()

	*f.clock = at(0, 9)
	if _, err := f.mutations.CheckIn(ctx, checkInParams("PAL-1", "A-01", 1), actor, ""); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	doubled := decimal.RequireFromString("20.00")
	preview, err := f.billing.Preview(ctx, "Acme Foods", day(0), day(6), &core.RateOverrides{RatePerPalletWeek: &doubled})
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if got := preview.BaseTotal.StringFixed(2); got != "20.00" {
		t.Errorf("override not applied: base %s", got)
	}
	// Non-overridden fields keep stored values.
	if got := preview.HandlingTotal.StringFixed(2); got != "1.50" {
		t.Errorf("handling total: want 1.50, got %s", got)
	}

	negative := decimal.RequireFromString("-1")
	_, err = f.billing.Preview(ctx, "Acme Foods", day(0), day(6), &core.RateOverrides{HandlingFeeFlat: &negative})
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for negative override, got %v", err)
	}
}

func TestBilling_NoRateConfigured(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	f := newBillingFixture(pool)
	ctx := context.Background()

	_, err := f.billing.Preview(ctx, "Unknown Customer", day(0), day(6), nil)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound without a rate, got %v", err)
	}
}

func TestInvoice_StatusTransitions(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	f := newBillingFixture(pool)
	f.seedRate(t)
	ctx := context.Background()

	inv, err := f.billing.Generate(ctx, "Acme Foods", day(0), day(6), nil)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	sent, err := f.billing.SetStatus(ctx, inv.ID, core.InvoiceSent)
	if err != nil {
		t.Fatalf("set SENT failed: %v", err)
	}
	if sent.Status != core.InvoiceSent || sent.SentAt == nil {
		t.Errorf("SENT transition wrong: status %s, sent_at %v", sent.Status, sent.SentAt)
	}

	paid, err := f.billing.SetStatus(ctx, inv.ID, core.InvoicePaid)
	if err != nil {
		t.Fatalf("set PAID failed: %v", err)
	}
	if paid.Status != core.InvoicePaid || paid.PaidAt == nil {
		t.Errorf("PAID transition wrong: status %s, paid_at %v", paid.Status, paid.PaidAt)
	}

	// Reverting to DRAFT clears both timestamps.
	draft, err := f.billing.SetStatus(ctx, inv.ID, core.InvoiceDraft)
	if err != nil {
		t.Fatalf("revert to DRAFT failed: %v", err)
	}
	if draft.SentAt != nil || draft.PaidAt != nil {
		t.Errorf("revert did not clear timestamps: %+v", draft)
	}

	_, err = f.billing.SetStatus(ctx, inv.ID, core.InvoiceStatus("VOID"))
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown status, got %v", err)
	}
	_, err = f.billing.SetStatus(ctx, inv.ID+999, core.InvoiceSent)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing invoice, got %v", err)
	}
}

func TestInvoice_Payments(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	f := newBillingFixture(pool)
	f.seedRate(t)
	ctx := context.Background()

	*f.clock = at(0, 9)
	if _, err := f.mutations.CheckIn(ctx, checkInParams("PAL-1", "A-01", 1), actor, ""); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	inv, err := f.billing.Generate(ctx, "Acme Foods", day(0), day(6), nil)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	// Partial payment moves DRAFT to SENT.
	key := uuid.NewString()
	res, err := f.billing.RecordPayment(ctx, inv.ID, decimal.RequireFromString("5.00"), "first instalment", time.Time{}, key)
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if res.Invoice.Status != core.InvoiceSent {
		t.Errorf("partial payment should leave invoice SENT, got %s", res.Invoice.Status)
	}
	if got := res.Invoice.AmountPaid.StringFixed(2); got != "5.00" {
		t.Errorf("amount paid: want 5.00, got %s", got)
	}

	// Same key again: nothing applied twice.
	repeat, err := f.billing.RecordPayment(ctx, inv.ID, decimal.RequireFromString("5.00"), "first instalment", time.Time{}, key)
	if err != nil {
		t.Fatalf("repeated payment errored: %v", err)
	}
	if !repeat.Deduped {
		t.Error("repeated payment key not deduped")
	}
	if got := repeat.Invoice.AmountPaid.StringFixed(2); got != "5.00" {
		t.Errorf("dedup changed amount paid: %s", got)
	}

	// Paying the balance settles the invoice.
	res, err = f.billing.RecordPayment(ctx, inv.ID, decimal.RequireFromString("6.50"), "balance", time.Time{}, uuid.NewString())
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if res.Invoice.Status != core.InvoicePaid || res.Invoice.PaidAt == nil {
		t.Errorf("full payment should settle invoice: status %s", res.Invoice.Status)
	}
	if len(res.Invoice.Payments) != 2 {
		t.Errorf("expected 2 payments on invoice, got %d", len(res.Invoice.Payments))
	}

	_, err = f.billing.RecordPayment(ctx, inv.ID, decimal.Zero, "", time.Time{}, "")
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero amount, got %v", err)
	}
}

func TestRateService_Upsert(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	rates := core.NewRateService(pool)
	ctx := context.Background()

	_, err := rates.GetRate(ctx, "Acme Foods")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound before upsert, got %v", err)
	}

	stored, err := rates.UpsertRate(ctx, &core.CustomerRate{
		CustomerName:      "Acme Foods",
		RatePerPalletWeek: decimal.RequireFromString("12.00"),
		PaymentTermsDays:  30,
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if stored.Currency != "GBP" {
		t.Errorf("currency should default to GBP, got %s", stored.Currency)
	}

	stored.RatePerPalletWeek = decimal.RequireFromString("15.00")
	updated, err := rates.UpsertRate(ctx, stored)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if got := updated.RatePerPalletWeek.StringFixed(2); got != "15.00" {
		t.Errorf("rate not replaced: %s", got)
	}

	bad := testRate()
	bad.PaymentTermsDays = 400
	if _, err := rates.UpsertRate(ctx, bad); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad terms, got %v", err)
	}

	list, err := rates.ListRates(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 rate, got %d", len(list))
	}
}
