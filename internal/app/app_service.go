package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/irons28/warehouse-tracker-all4/internal/cache"
	"github.com/irons28/warehouse-tracker-all4/internal/core"
)

// occupancyCacheKey is the single cache entry for the active snapshot; every
// applied mutation invalidates it.
const occupancyCacheKey = "occupancy:active"

const occupancyCacheTTL = 30 * time.Second

type appService struct {
	store     *core.LedgerStore
	mutations *core.MutationService
	occupancy *core.OccupancyService
	billing   *core.BillingService
	rates     *core.RateService
	cache     cache.OccupancyCache
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	store *core.LedgerStore,
	mutations *core.MutationService,
	occupancy *core.OccupancyService,
	billing *core.BillingService,
	rates *core.RateService,
	occupancyCache cache.OccupancyCache,
) ApplicationService {
	if occupancyCache == nil {
		occupancyCache = cache.NoopOccupancyCache{}
	}
	return &appService{
		store:     store,
		mutations: mutations,
		occupancy: occupancy,
		billing:   billing,
		rates:     rates,
		cache:     occupancyCache,
	}
}

func (a ActorInput) toCore() core.Actor {
	return core.Actor{ScannedBy: a.ScannedBy, ActorID: a.ActorID, SessionID: a.SessionID}
}

func (r PalletRefInput) toCore() core.PalletRef {
	return core.PalletRef{ID: r.PalletID, ProductID: r.ProductID}
}

// afterMutation drops the occupancy snapshot so the next poll sees the new
// state. Cache errors are logged, never surfaced — the snapshot has a short
// TTL and self-heals.
func (s *appService) afterMutation(ctx context.Context, res *core.MutationResult) *MutationResult {
	if !res.Deduped {
		if err := s.cache.Invalidate(ctx, occupancyCacheKey); err != nil {
			log.Printf("occupancy cache invalidate: %v", err)
		}
	}
	return &MutationResult{Pallet: res.Pallet, Deduped: res.Deduped}
}

func (s *appService) CheckIn(ctx context.Context, req CheckInRequest) (*MutationResult, error) {
	res, err := s.mutations.CheckIn(ctx, core.CheckInParams{
		PalletID:        req.PalletID,
		CustomerName:    req.CustomerName,
		ProductID:       req.ProductID,
		Location:        req.Location,
		PalletQuantity:  req.PalletQuantity,
		ProductQuantity: req.ProductQuantity,
		Notes:           req.Notes,
	}, req.Actor.toCore(), req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, res), nil
}

func (s *appService) Move(ctx context.Context, req MoveRequest) (*MutationResult, error) {
	res, err := s.mutations.Move(ctx, req.Ref.toCore(), core.MoveParams{
		ToLocation: req.ToLocation,
		Notes:      req.Notes,
	}, req.Actor.toCore(), req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, res), nil
}

func (s *appService) PartialRemove(ctx context.Context, req PartialRemoveRequest) (*MutationResult, error) {
	res, err := s.mutations.PartialRemove(ctx, req.Ref.toCore(), core.PartialRemoveParams{
		Quantity: req.Quantity,
		Notes:    req.Notes,
	}, req.Actor.toCore(), req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, res), nil
}

func (s *appService) UnitsRemove(ctx context.Context, req UnitsRemoveRequest) (*MutationResult, error) {
	res, err := s.mutations.UnitsRemove(ctx, req.Ref.toCore(), core.UnitsRemoveParams{
		Units: req.Units,
		Notes: req.Notes,
	}, req.Actor.toCore(), req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, res), nil
}

func (s *appService) CheckOut(ctx context.Context, req CheckOutRequest) (*MutationResult, error) {
	res, err := s.mutations.CheckOut(ctx, req.Ref.toCore(), core.CheckOutParams{
		Notes: req.Notes,
	}, req.Actor.toCore(), req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, res), nil
}

func (s *appService) GetPallet(ctx context.Context, id string) (*PalletResult, error) {
	pallet, err := s.store.CurrentPallet(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PalletResult{Pallet: pallet}, nil
}

func (s *appService) GetPalletHistory(ctx context.Context, id string) (*HistoryResult, error) {
	records, err := s.store.RecordsForPallet(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("pallet %s: %w", id, core.ErrNotFound)
	}
	return &HistoryResult{PalletID: id, Records: records}, nil
}

func (s *appService) ListActiveOccupancy(ctx context.Context) (*OccupancyListResult, error) {
	if pallets, ok, err := s.cache.Get(ctx, occupancyCacheKey); err == nil && ok {
		return &OccupancyListResult{Pallets: pallets, Cached: true}, nil
	} else if err != nil {
		log.Printf("occupancy cache get: %v", err)
	}

	pallets, err := s.store.ListActivePallets(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, occupancyCacheKey, pallets, occupancyCacheTTL); err != nil {
		log.Printf("occupancy cache set: %v", err)
	}
	return &OccupancyListResult{Pallets: pallets}, nil
}

// parseDay parses a YYYY-MM-DD calendar date.
func parseDay(field, value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q, want YYYY-MM-DD: %w", field, value, core.ErrInvalidInput)
	}
	return t, nil
}

func (s *appService) ComputeOccupancy(ctx context.Context, customer, startDate, endDate string) (*core.OccupancyResult, error) {
	start, err := parseDay("start date", startDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDay("end date", endDate)
	if err != nil {
		return nil, err
	}
	return s.occupancy.ComputeOccupancy(ctx, customer, start, end)
}

func (o *RateOverridesInput) toCore() *core.RateOverrides {
	if o == nil {
		return nil
	}
	return &core.RateOverrides{
		RatePerPalletWeek:    o.RatePerPalletWeek,
		HandlingFeeFlat:      o.HandlingFeeFlat,
		HandlingFeePerPallet: o.HandlingFeePerPallet,
		PaymentTermsDays:     o.PaymentTermsDays,
		Currency:             o.Currency,
	}
}

func (s *appService) PreviewInvoice(ctx context.Context, req InvoiceRequest) (*core.InvoicePreview, error) {
	start, err := parseDay("start date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDay("end date", req.EndDate)
	if err != nil {
		return nil, err
	}
	return s.billing.Preview(ctx, req.CustomerName, start, end, req.Overrides.toCore())
}

func (s *appService) GenerateInvoice(ctx context.Context, req InvoiceRequest) (*core.Invoice, error) {
	start, err := parseDay("start date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDay("end date", req.EndDate)
	if err != nil {
		return nil, err
	}
	return s.billing.Generate(ctx, req.CustomerName, start, end, req.Overrides.toCore())
}

func (s *appService) GetInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	return s.billing.GetInvoice(ctx, id)
}

func (s *appService) ListInvoices(ctx context.Context, customer string) ([]core.Invoice, error) {
	return s.billing.ListInvoices(ctx, customer)
}

func (s *appService) SetInvoiceStatus(ctx context.Context, id int64, status string) (*core.Invoice, error) {
	return s.billing.SetStatus(ctx, id, core.InvoiceStatus(status))
}

func (s *appService) RecordPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	var paidAt time.Time
	if req.PaidAt != "" {
		t, err := time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			t, err = parseDay("paid_at", req.PaidAt)
			if err != nil {
				return nil, err
			}
		}
		paidAt = t
	}

	res, err := s.billing.RecordPayment(ctx, req.InvoiceID, req.Amount, req.Note, paidAt, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Invoice: res.Invoice, Deduped: res.Deduped}, nil
}

func (s *appService) GetRate(ctx context.Context, customer string) (*core.CustomerRate, error) {
	return s.rates.GetRate(ctx, customer)
}

func (s *appService) UpsertRate(ctx context.Context, req RateRequest) (*core.CustomerRate, error) {
	return s.rates.UpsertRate(ctx, &core.CustomerRate{
		CustomerName:         req.CustomerName,
		RatePerPalletWeek:    req.RatePerPalletWeek,
		HandlingFeeFlat:      req.HandlingFeeFlat,
		HandlingFeePerPallet: req.HandlingFeePerPallet,
		PaymentTermsDays:     req.PaymentTermsDays,
		Currency:             req.Currency,
	})
}

func (s *appService) ListRates(ctx context.Context) ([]core.CustomerRate, error) {
	return s.rates.ListRates(ctx)
}
