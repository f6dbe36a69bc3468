package core_test

import (
	"testing"
	"time"

	"github.com/irons28/warehouse-tracker-all4/internal/core"
)

var day0 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return day0.AddDate(0, 0, n)
}

func at(n int, hour int) time.Time {
	return day(n).Add(time.Duration(hour) * time.Hour)
}

func rec(palletID string, action core.Action, changed, before, after int, recordedAt time.Time) core.LedgerRecord {
	return core.LedgerRecord{
		PalletID:        palletID,
		CustomerName:    "Acme Foods",
		Action:          action,
		QuantityChanged: changed,
		QuantityBefore:  before,
		QuantityAfter:   after,
		Location:        "A-01",
		RecordedAt:      recordedAt,
	}
}

func TestReplayOccupancy_TwoPalletsSingleDay(t *testing.T) {
	records := []core.LedgerRecord{
		rec("PAL-1", core.ActionCheckIn, 1, 0, 1, at(0, 9)),
		rec("PAL-2", core.ActionCheckIn, 1, 0, 1, at(0, 10)),
	}

	res := core.ReplayOccupancy(records, day(0), day(0))
	if res.PalletDays != 2 {
		t.Errorf("expected 2 pallet-days, got %d", res.PalletDays)
	}
	if res.DaysInRange != 1 {
		t.Errorf("expected 1 day in range, got %d", res.DaysInRange)
	}
	if res.HandledPallets != 2 {
		t.Errorf("expected 2 handled pallets, got %d", res.HandledPallets)
	}
}

func TestReplayOccupancy_MultiDayWithCheckOut(t *testing.T) {
	// PAL-1 in for days 0..6, PAL-2 in for days 2..4 (checked out on day 5).
	records := []core.LedgerRecord{
		rec("PAL-1", core.ActionCheckIn, 1, 0, 1, at(0, 9)),
		rec("PAL-2", core.ActionCheckIn, 3, 0, 3, at(2, 9)),
		rec("PAL-2", core.ActionCheckOut, 3, 3, 0, at(5, 9)),
	}

	res := core.ReplayOccupancy(records, day(0), day(6))
	// PAL-1: 7 days x 1. PAL-2: days 2,3,4 at quantity 3.
	if want := 7 + 9; res.PalletDays != want {
		t.Errorf("expected %d pallet-days, got %d", want, res.PalletDays)
	}
	if res.DaysInRange != 7 {
		t.Errorf("expected 7 days in range, got %d", res.DaysInRange)
	}
	if res.HandledPallets != 4 {
		t.Errorf("expected 4 handled pallets, got %d", res.HandledPallets)
	}
}

func TestReplayOccupancy_SameDayCheckOutCountsZero(t *testing.T) {
	// Occupancy is measured at each day's end, so a pallet that comes and
	// goes inside one day never appears.
	records := []core.LedgerRecord{
		rec("PAL-1", core.ActionCheckIn, 2, 0, 2, at(0, 9)),
		rec("PAL-1", core.ActionCheckOut, 2, 2, 0, at(0, 17)),
	}

	res := core.ReplayOccupancy(records, day(0), day(0))
	if res.PalletDays != 0 {
		t.Errorf("expected 0 pallet-days, got %d", res.PalletDays)
	}
	if res.HandledPallets != 2 {
		t.Errorf("check-in should still count as handled, got %d", res.HandledPallets)
	}
}

func TestReplayOccupancy_MidnightBoundary(t *testing.T) {
	// A record stamped exactly at the next midnight belongs to the next day.
	records := []core.LedgerRecord{
		rec("PAL-1", core.ActionCheckIn, 1, 0, 1, day(1)),
	}

	res := core.ReplayOccupancy(records, day(0), day(0))
	if res.PalletDays != 0 {
		t.Errorf("midnight record leaked into previous day: %d pallet-days", res.PalletDays)
	}

	res = core.ReplayOccupancy(records, day(0), day(1))
	if res.PalletDays != 1 {
		t.Errorf("expected 1 pallet-day across two days, got %d", res.PalletDays)
	}
	if res.HandledPallets != 1 {
		t.Errorf("expected 1 handled pallet, got %d", res.HandledPallets)
	}
}

func TestReplayOccupancy_UnitsRemoveDoesNotAffectSlots(t *testing.T) {
	records := []core.LedgerRecord{
		rec("PAL-1", core.ActionCheckIn, 2, 0, 2, at(0, 9)),
		rec("PAL-1", core.ActionUnitsRemove, 50, 100, 50, at(1, 9)),
	}

	res := core.ReplayOccupancy(records, day(0), day(2))
	if want := 3 * 2; res.PalletDays != want {
		t.Errorf("units removal changed slot occupancy: want %d, got %d", want, res.PalletDays)
	}
}

func TestReplayOccupancy_PartialRemoveToZero(t *testing.T) {
	records := []core.LedgerRecord{
		rec("PAL-1", core.ActionCheckIn, 2, 0, 2, at(0, 9)),
		rec("PAL-1", core.ActionPartialRemove, 1, 2, 1, at(1, 9)),
		rec("PAL-1", core.ActionPartialRemove, 1, 1, 0, at(2, 9)),
	}

	res := core.ReplayOccupancy(records, day(0), day(3))
	// Day 0: 2. Day 1: 1. Day 2: 0. Day 3: 0.
	if res.PalletDays != 3 {
		t.Errorf("expected 3 pallet-days, got %d", res.PalletDays)
	}
}

func TestReplayOccupancy_HandledPalletsOnlyInsideRange(t *testing.T) {
	records := []core.LedgerRecord{
		rec("PAL-1", core.ActionCheckIn, 5, 0, 5, at(0, 9)),
		rec("PAL-2", core.ActionCheckIn, 3, 0, 3, at(4, 9)),
	}

	res := core.ReplayOccupancy(records, day(2), day(3))
	// PAL-1 arrived before the range: it accrues pallet-days but is not a
	// handling event in this range.
	if res.HandledPallets != 0 {
		t.Errorf("expected 0 handled pallets, got %d", res.HandledPallets)
	}
	if want := 2 * 5; res.PalletDays != want {
		t.Errorf("expected %d pallet-days, got %d", want, res.PalletDays)
	}
}

func TestReplayOccupancy_Deterministic(t *testing.T) {
	records := []core.LedgerRecord{
		rec("PAL-1", core.ActionCheckIn, 2, 0, 2, at(0, 9)),
		rec("PAL-2", core.ActionCheckIn, 1, 0, 1, at(1, 9)),
		rec("PAL-1", core.ActionPartialRemove, 1, 2, 1, at(3, 9)),
		rec("PAL-2", core.ActionCheckOut, 1, 1, 0, at(4, 9)),
	}

	first := core.ReplayOccupancy(records, day(0), day(6))
	for i := 0; i < 10; i++ {
		if got := core.ReplayOccupancy(records, day(0), day(6)); got != first {
			t.Fatalf("replay %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestReplayOccupancy_MonotonicInRangeLength(t *testing.T) {
	records := []core.LedgerRecord{
		rec("PAL-1", core.ActionCheckIn, 2, 0, 2, at(0, 9)),
		rec("PAL-2", core.ActionCheckIn, 1, 0, 1, at(2, 9)),
		rec("PAL-1", core.ActionCheckOut, 2, 2, 0, at(5, 9)),
	}

	prev := 0
	for n := 0; n < 10; n++ {
		res := core.ReplayOccupancy(records, day(0), day(n))
		if res.PalletDays < prev {
			t.Fatalf("pallet-days shrank when range grew to %d days: %d < %d", n+1, res.PalletDays, prev)
		}
		prev = res.PalletDays
	}
}

func TestReplayOccupancy_EmptyLedger(t *testing.T) {
	res := core.ReplayOccupancy(nil, day(0), day(6))
	if res.PalletDays != 0 || res.HandledPallets != 0 {
		t.Errorf("empty ledger produced occupancy: %+v", res)
	}
	if res.DaysInRange != 7 {
		t.Errorf("expected 7 days in range, got %d", res.DaysInRange)
	}
}
