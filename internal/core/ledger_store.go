package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared
// query helpers inside and outside transactions.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LedgerStore owns the append-only ledger_records table and the read paths
// over it and the current-state tables. Appends happen inside the mutation's
// transaction so that a failed current-state update rolls the record back too.
type LedgerStore struct {
	pool *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const ledgerColumns = `sequence_id, pallet_id, customer_name, product_id, action,
	quantity_changed, quantity_before, quantity_after, location, notes,
	scanned_by, actor_id, session_id, COALESCE(idempotency_key, ''), recorded_at`

func scanLedgerRecord(row pgx.Row) (*LedgerRecord, error) {
	var rec LedgerRecord
	err := row.Scan(
		&rec.SequenceID, &rec.PalletID, &rec.CustomerName, &rec.ProductID, &rec.Action,
		&rec.QuantityChanged, &rec.QuantityBefore, &rec.QuantityAfter, &rec.Location, &rec.Notes,
		&rec.Actor.ScannedBy, &rec.Actor.ActorID, &rec.Actor.SessionID, &rec.IdempotencyKey, &rec.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AppendTx inserts one ledger record within the caller's transaction and
// returns the assigned sequence id. The second return is true when the
// record's idempotency key already exists: the unique constraint resolved a
// concurrent duplicate and nothing was inserted.
func (s *LedgerStore) AppendTx(ctx context.Context, tx pgx.Tx, rec *LedgerRecord) (int64, bool, error) {
	var key *string
	if rec.IdempotencyKey != "" {
		key = &rec.IdempotencyKey
	}

	var seq int64
	err := tx.QueryRow(ctx, `
		INSERT INTO ledger_records (pallet_id, customer_name, product_id, action,
			quantity_changed, quantity_before, quantity_after, location, notes,
			scanned_by, actor_id, session_id, idempotency_key, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING sequence_id
	`, rec.PalletID, rec.CustomerName, rec.ProductID, rec.Action,
		rec.QuantityChanged, rec.QuantityBefore, rec.QuantityAfter, rec.Location, rec.Notes,
		rec.Actor.ScannedBy, rec.Actor.ActorID, rec.Actor.SessionID, key, rec.RecordedAt,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to append ledger record: %w", err)
	}
	rec.SequenceID = seq
	return seq, false, nil
}

// CurrentPallet returns the current-state row for a pallet id regardless of
// status. Callers that only accept active pallets check Status themselves.
func (s *LedgerStore) CurrentPallet(ctx context.Context, id string) (*Pallet, error) {
	return currentPallet(ctx, s.pool, id)
}

const palletColumns = `id, customer_name, product_id, location, pallet_quantity,
	product_quantity, current_units, status, version, date_added, date_removed`

func scanPallet(row pgx.Row) (*Pallet, error) {
	var p Pallet
	err := row.Scan(
		&p.ID, &p.CustomerName, &p.ProductID, &p.Location, &p.PalletQuantity,
		&p.ProductQuantity, &p.CurrentUnits, &p.Status, &p.Version, &p.DateAdded, &p.DateRemoved,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func currentPallet(ctx context.Context, q pgxQuerier, id string) (*Pallet, error) {
	p, err := scanPallet(q.QueryRow(ctx, `SELECT `+palletColumns+` FROM pallets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pallet %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pallet %s: %w", id, err)
	}
	return p, nil
}

// ActivePalletByProduct resolves a pallet by its alternate key when the
// caller scanned a product code instead of a pallet id. Exactly one active
// pallet must match; zero matches is NotFound and several is Conflict, since
// applying a scan to an arbitrary one of them would be a silent misroute.
func (s *LedgerStore) ActivePalletByProduct(ctx context.Context, productID string) (*Pallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+palletColumns+` FROM pallets
		WHERE product_id = $1 AND status = 'active'
		ORDER BY date_added
		LIMIT 2
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pallets for product %s: %w", productID, err)
	}
	defer rows.Close()

	var pallets []*Pallet
	for rows.Next() {
		p, err := scanPallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pallet: %w", err)
		}
		pallets = append(pallets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pallets: %w", err)
	}

	switch len(pallets) {
	case 0:
		return nil, fmt.Errorf("no active pallet for product %s: %w", productID, ErrNotFound)
	case 1:
		return pallets[0], nil
	default:
		return nil, fmt.Errorf("product %s matches multiple active pallets, scan the pallet id: %w", productID, ErrConflict)
	}
}

// RecordsForCustomer returns all ledger records for a customer with
// recorded_at <= upTo, in the stable total order used by replay:
// ascending by timestamp, then by sequence id.
func (s *LedgerStore) RecordsForCustomer(ctx context.Context, customer string, upTo time.Time) ([]LedgerRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_records
		WHERE customer_name = $1 AND recorded_at <= $2
		ORDER BY recorded_at, sequence_id
	`, customer, upTo)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger records: %w", err)
	}
	defer rows.Close()

	var records []LedgerRecord
	for rows.Next() {
		rec, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger records: %w", err)
	}
	return records, nil
}

// RecordsForPallet returns the full history of one pallet in append order.
func (s *LedgerStore) RecordsForPallet(ctx context.Context, palletID string) ([]LedgerRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_records
		WHERE pallet_id = $1
		ORDER BY sequence_id
	`, palletID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pallet history: %w", err)
	}
	defer rows.Close()

	var records []LedgerRecord
	for rows.Next() {
		rec, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pallet history: %w", err)
	}
	return records, nil
}

// FindByIdempotencyKey returns the ledger record carrying the given key,
// or nil when no record has it.
func (s *LedgerStore) FindByIdempotencyKey(ctx context.Context, key string) (*LedgerRecord, error) {
	rec, err := scanLedgerRecord(s.pool.QueryRow(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_records WHERE idempotency_key = $1
	`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return rec, nil
}

// HasRecentDuplicate reports whether a ledger record with the same pallet,
// action, location, and quantity delta was appended at or after `since`.
// Guards against double-applied scans that arrive without idempotency keys.
func (s *LedgerStore) HasRecentDuplicate(ctx context.Context, palletID string, action Action, location string, quantityChanged int, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_records
			WHERE pallet_id = $1 AND action = $2 AND location = $3
			  AND quantity_changed = $4 AND recorded_at >= $5
		)
	`, palletID, action, location, quantityChanged, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recent duplicates: %w", err)
	}
	return exists, nil
}

// GetLocation returns a location row by id.
func (s *LedgerStore) GetLocation(ctx context.Context, id string) (*Location, error) {
	var loc Location
	err := s.pool.QueryRow(ctx, `
		SELECT id, capacity_pallets, is_occupied, location_type FROM locations WHERE id = $1
	`, id).Scan(&loc.ID, &loc.CapacityPallets, &loc.IsOccupied, &loc.LocationType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch location %s: %w", id, err)
	}
	return &loc, nil
}

// ListActivePallets returns a snapshot of every active pallet, ordered by
// location then id. Used by the Sheets-sync collaborator.
func (s *LedgerStore) ListActivePallets(ctx context.Context) ([]Pallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+palletColumns+` FROM pallets
		WHERE status = 'active'
		ORDER BY location, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active pallets: %w", err)
	}
	defer rows.Close()

	var pallets []Pallet
	for rows.Next() {
		p, err := scanPallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pallet: %w", err)
		}
		pallets = append(pallets, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active pallets: %w", err)
	}
	return pallets, nil
}
