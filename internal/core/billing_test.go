package core_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/irons28/warehouse-tracker-all4/internal/core"
)

func testRate() *core.CustomerRate {
	return &core.CustomerRate{
		CustomerName:         "Acme Foods",
		RatePerPalletWeek:    decimal.RequireFromString("10.00"),
		HandlingFeeFlat:      decimal.RequireFromString("1.00"),
		HandlingFeePerPallet: decimal.RequireFromString("0.50"),
		PaymentTermsDays:     14,
		Currency:             "GBP",
	}
}

func TestBuildPreview_OneWeekOnePallet(t *testing.T) {
	occ := &core.OccupancyResult{PalletDays: 7, DaysInRange: 7, HandledPallets: 1}

	p := core.BuildPreview("Acme Foods", day(0), day(6), occ, testRate())

	if got := p.BaseTotal.StringFixed(2); got != "10.00" {
		t.Errorf("base total: want 10.00, got %s", got)
	}
	if got := p.HandlingTotal.StringFixed(2); got != "1.50" {
		t.Errorf("handling total: want 1.50, got %s", got)
	}
	if got := p.Total.StringFixed(2); got != "11.50" {
		t.Errorf("total: want 11.50, got %s", got)
	}
	if want := day(6).AddDate(0, 0, 14); !p.DueDate.Equal(want) {
		t.Errorf("due date: want %s, got %s", want, p.DueDate)
	}
	if p.Currency != "GBP" {
		t.Errorf("currency: want GBP, got %s", p.Currency)
	}
}

func TestBuildPreview_RoundsEachSubtotal(t *testing.T) {
	// 10 pallet-days at 10/week is 14.2857...; stored as 14.29.
	occ := &core.OccupancyResult{PalletDays: 10, DaysInRange: 10, HandledPallets: 0}

	p := core.BuildPreview("Acme Foods", day(0), day(9), occ, testRate())

	if got := p.BaseTotal.StringFixed(2); got != "14.29" {
		t.Errorf("base total: want 14.29, got %s", got)
	}
	if got := p.HandlingTotal.StringFixed(2); got != "1.00" {
		t.Errorf("handling total: want 1.00, got %s", got)
	}
	if got := p.Total.StringFixed(2); got != "15.29" {
		t.Errorf("total: want 15.29, got %s", got)
	}
}

func TestBuildPreview_ZeroOccupancy(t *testing.T) {
	occ := &core.OccupancyResult{PalletDays: 0, DaysInRange: 7, HandledPallets: 0}

	p := core.BuildPreview("Acme Foods", day(0), day(6), occ, testRate())

	if got := p.Total.StringFixed(2); got != "1.00" {
		t.Errorf("flat fee should still apply: want 1.00, got %s", got)
	}
}

func TestCustomerRate_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*core.CustomerRate)
		ok     bool
	}{
		{"valid", func(r *core.CustomerRate) {}, true},
		{"zero terms", func(r *core.CustomerRate) { r.PaymentTermsDays = 0 }, true},
		{"negative rate", func(r *core.CustomerRate) { r.RatePerPalletWeek = decimal.RequireFromString("-1") }, false},
		{"negative flat fee", func(r *core.CustomerRate) { r.HandlingFeeFlat = decimal.RequireFromString("-0.01") }, false},
		{"negative per-pallet fee", func(r *core.CustomerRate) { r.HandlingFeePerPallet = decimal.RequireFromString("-5") }, false},
		{"negative terms", func(r *core.CustomerRate) { r.PaymentTermsDays = -1 }, false},
		{"terms over a year", func(r *core.CustomerRate) { r.PaymentTermsDays = 366 }, false},
		{"missing currency", func(r *core.CustomerRate) { r.Currency = "" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate := testRate()
			tc.mutate(rate)
			err := rate.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !errors.Is(err, core.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			}
		})
	}
}
