package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RateService manages per-customer billing configuration. The billing
// calculator reads through it when resolving effective rates.
type RateService struct {
	pool *pgxpool.Pool
}

func NewRateService(pool *pgxpool.Pool) *RateService {
	return &RateService{pool: pool}
}

const rateColumns = `customer_name, rate_per_pallet_week, handling_fee_flat,
	handling_fee_per_pallet, payment_terms_days, currency`

func scanRate(row pgx.Row) (*CustomerRate, error) {
	var r CustomerRate
	err := row.Scan(&r.CustomerName, &r.RatePerPalletWeek, &r.HandlingFeeFlat,
		&r.HandlingFeePerPallet, &r.PaymentTermsDays, &r.Currency)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRate returns the stored rate for a customer.
func (s *RateService) GetRate(ctx context.Context, customer string) (*CustomerRate, error) {
	rate, err := scanRate(s.pool.QueryRow(ctx, `
		SELECT `+rateColumns+` FROM customer_rates WHERE customer_name = $1
	`, customer))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no rate configured for customer %s: %w", customer, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rate for %s: %w", customer, err)
	}
	return rate, nil
}

// UpsertRate creates or replaces a customer's rate configuration.
func (s *RateService) UpsertRate(ctx context.Context, rate *CustomerRate) (*CustomerRate, error) {
	if rate.CustomerName == "" {
		return nil, fmt.Errorf("customer name is required: %w", ErrInvalidInput)
	}
	if rate.Currency == "" {
		rate.Currency = "GBP"
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}

	stored, err := scanRate(s.pool.QueryRow(ctx, `
		INSERT INTO customer_rates (customer_name, rate_per_pallet_week, handling_fee_flat,
			handling_fee_per_pallet, payment_terms_days, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (customer_name) DO UPDATE SET
			rate_per_pallet_week = EXCLUDED.rate_per_pallet_week,
			handling_fee_flat = EXCLUDED.handling_fee_flat,
			handling_fee_per_pallet = EXCLUDED.handling_fee_per_pallet,
			payment_terms_days = EXCLUDED.payment_terms_days,
			currency = EXCLUDED.currency,
			updated_at = NOW()
		RETURNING `+rateColumns,
		rate.CustomerName, rate.RatePerPalletWeek, rate.HandlingFeeFlat,
		rate.HandlingFeePerPallet, rate.PaymentTermsDays, rate.Currency,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert rate for %s: %w", rate.CustomerName, err)
	}
	return stored, nil
}

// ListRates returns all configured rates ordered by customer name.
func (s *RateService) ListRates(ctx context.Context) ([]CustomerRate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rateColumns+` FROM customer_rates ORDER BY customer_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	var rates []CustomerRate
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		rates = append(rates, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rates: %w", err)
	}
	return rates, nil
}
