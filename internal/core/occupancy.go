package core

import (
	"context"
	"fmt"
	"time"
)

// OccupancyService reconstructs day-by-day billable occupancy by replaying
// the ledger. It is a pure function of the ledger prefix: the same records
// always produce the same totals.
type OccupancyService struct {
	store *LedgerStore
}

func NewOccupancyService(store *LedgerStore) *OccupancyService {
	return &OccupancyService{store: store}
}

// ComputeOccupancy replays all ledger records for a customer up to the end of
// the range and sums per-day active pallet quantities. start and end are
// calendar days, inclusive on both sides.
func (s *OccupancyService) ComputeOccupancy(ctx context.Context, customer string, start, end time.Time) (*OccupancyResult, error) {
	if customer == "" {
		return nil, fmt.Errorf("customer name is required: %w", ErrInvalidInput)
	}
	startDay, endDay := dayStart(start), dayStart(end)
	if endDay.Before(startDay) {
		return nil, fmt.Errorf("end date %s before start date %s: %w",
			endDay.Format("2006-01-02"), startDay.Format("2006-01-02"), ErrInvalidInput)
	}

	records, err := s.store.RecordsForCustomer(ctx, customer, endDay.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	result := ReplayOccupancy(records, startDay, endDay)
	return &result, nil
}

// ReplayOccupancy computes pallet-day and handled-pallet totals from an
// ordered record slice. Records must be sorted ascending by timestamp then
// sequence id — the order RecordsForCustomer returns.
//
// Pallet-days count slot occupancy: CHECK_IN and PARTIAL_REMOVE set a
// pallet's active quantity to the record's quantity_after, CHECK_OUT drops
// it, and UNITS_REMOVE is invisible here because drawing units from a pallet
// does not change how many slots it occupies. Each day's occupancy is the
// state after applying every record stamped at or before that day's end.
func ReplayOccupancy(records []LedgerRecord, start, end time.Time) OccupancyResult {
	startDay, endDay := dayStart(start), dayStart(end)

	active := make(map[string]int)
	cursor := 0
	palletDays := 0
	days := 0

	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		cutoff := day.AddDate(0, 0, 1) // records strictly before next midnight
		for cursor < len(records) && records[cursor].RecordedAt.Before(cutoff) {
			applyToActiveMap(active, records[cursor])
			cursor++
		}
		for _, qty := range active {
			palletDays += qty
		}
		days++
	}

	handled := 0
	rangeEnd := endDay.AddDate(0, 0, 1)
	for _, rec := range records {
		if rec.Action == ActionCheckIn && !rec.RecordedAt.Before(startDay) && rec.RecordedAt.Before(rangeEnd) {
			handled += rec.QuantityChanged
		}
	}

	return OccupancyResult{PalletDays: palletDays, DaysInRange: days, HandledPallets: handled}
}

func applyToActiveMap(active map[string]int, rec LedgerRecord) {
	switch rec.Action {
	case ActionCheckIn:
		active[rec.PalletID] = rec.QuantityAfter
	case ActionCheckOut:
		delete(active, rec.PalletID)
	case ActionPartialRemove:
		if rec.QuantityAfter > 0 {
			active[rec.PalletID] = rec.QuantityAfter
		} else {
			delete(active, rec.PalletID)
		}
	}
}

// dayStart truncates a timestamp to UTC midnight of its calendar day.
func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
