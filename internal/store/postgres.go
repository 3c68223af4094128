package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/model"
)

// PostgresStore implements Backend using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS gts_listings (
		id          UUID PRIMARY KEY,
		owner       UUID NOT NULL,
		owner_name  TEXT NOT NULL,
		entry_kind  TEXT NOT NULL,
		entry_blob  BYTEA NOT NULL,
		auction     BOOLEAN NOT NULL,
		price       NUMERIC NOT NULL,
		increment   NUMERIC NOT NULL DEFAULT 0,
		high_bid    NUMERIC,
		high_bidder UUID,
		bidder_name TEXT NOT NULL DEFAULT '',
		buyer       UUID,
		buyer_name  TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ,
		status      TEXT NOT NULL,
		settled     BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS gts_logs (
		id         UUID PRIMARY KEY,
		owner      UUID NOT NULL,
		listing_id UUID NOT NULL,
		action     TEXT NOT NULL,
		summary    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS gts_logs_owner_idx ON gts_logs (owner, created_at)`,
	`CREATE TABLE IF NOT EXISTS gts_held_entries (
		id         UUID PRIMARY KEY,
		recipient  UUID NOT NULL,
		entry_kind TEXT NOT NULL,
		entry_blob BYTEA NOT NULL,
		reason     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS gts_held_prices (
		id         UUID PRIMARY KEY,
		recipient  UUID NOT NULL,
		amount     NUMERIC NOT NULL,
		reason     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS gts_ignorers (
		player UUID PRIMARY KEY
	)`,
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Init(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init postgres schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Save is a no-op; every write is committed as it happens.
func (s *PostgresStore) Save(_ context.Context) error { return nil }

func (s *PostgresStore) AddListing(ctx context.Context, rec model.ListingRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gts_listings (id, owner, owner_name, entry_kind, entry_blob, auction,
		        price, increment, high_bid, high_bidder, bidder_name, buyer, buyer_name,
		        created_at, expires_at, status, settled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID, rec.Owner, rec.OwnerName, rec.EntryKind, rec.EntryBlob, rec.Auction,
		rec.Price.String(), rec.Increment.String(), decimalPtrString(rec.HighBid),
		rec.HighBidder, rec.BidderName, rec.Buyer, rec.BuyerName,
		rec.CreatedAt, rec.ExpiresAt, rec.Status, rec.Settled,
	)
	if err != nil {
		return fmt.Errorf("add listing %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateListing(ctx context.Context, rec model.ListingRecord) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE gts_listings
		 SET high_bid = $2::NUMERIC, high_bidder = $3, bidder_name = $4,
		     buyer = $5, buyer_name = $6, expires_at = $7, status = $8, settled = $9
		 WHERE id = $1`,
		rec.ID, decimalPtrString(rec.HighBid), rec.HighBidder, rec.BidderName,
		rec.Buyer, rec.BuyerName, rec.ExpiresAt, rec.Status, rec.Settled,
	)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update listing %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) RemoveListing(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "gts_listings", "listing", id)
}

func (s *PostgresStore) Listings(ctx context.Context) ([]model.ListingRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, owner_name, entry_kind, entry_blob, auction,
		        price::TEXT, increment::TEXT, high_bid::TEXT, high_bidder, bidder_name,
		        buyer, buyer_name, created_at, expires_at, status, settled
		 FROM gts_listings ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

func (s *PostgresStore) AddLog(ctx context.Context, l model.Log) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gts_logs (id, owner, listing_id, action, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.Owner, l.ListingID, l.Action, l.Summary, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add log %s: %w", l.ID, err)
	}
	return nil
}

func (s *PostgresStore) RemoveLog(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "gts_logs", "log", id)
}

func (s *PostgresStore) Logs(ctx context.Context, owner uuid.UUID) ([]model.Log, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, listing_id, action, summary, created_at
		 FROM gts_logs WHERE owner = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, fmt.Errorf("logs for %s: %w", owner, err)
	}
	defer rows.Close()

	var logs []model.Log
	for rows.Next() {
		var l model.Log
		if err := rows.Scan(&l.ID, &l.Owner, &l.ListingID, &l.Action, &l.Summary, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) AddHeldEntry(ctx context.Context, rec model.HeldEntryRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gts_held_entries (id, recipient, entry_kind, entry_blob, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Recipient, rec.EntryKind, rec.EntryBlob, rec.Reason, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add held entry %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) RemoveHeldEntry(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "gts_held_entries", "held entry", id)
}

func (s *PostgresStore) HeldEntries(ctx context.Context) ([]model.HeldEntryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, recipient, entry_kind, entry_blob, reason, created_at
		 FROM gts_held_entries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list held entries: %w", err)
	}
	defer rows.Close()

	var out []model.HeldEntryRecord
	for rows.Next() {
		var h model.HeldEntryRecord
		if err := rows.Scan(&h.ID, &h.Recipient, &h.EntryKind, &h.EntryBlob, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddHeldPrice(ctx context.Context, rec model.HeldPriceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gts_held_prices (id, recipient, amount, reason, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5)`,
		rec.ID, rec.Recipient, rec.Amount.String(), rec.Reason, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add held price %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) RemoveHeldPrice(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "gts_held_prices", "held price", id)
}

func (s *PostgresStore) HeldPrices(ctx context.Context) ([]model.HeldPriceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, recipient, amount::TEXT, reason, created_at
		 FROM gts_held_prices ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list held prices: %w", err)
	}
	defer rows.Close()

	var out []model.HeldPriceRecord
	for rows.Next() {
		var h model.HeldPriceRecord
		var amountS string
		if err := rows.Scan(&h.ID, &h.Recipient, &amountS, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Amount, _ = decimal.NewFromString(amountS)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddIgnorer(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gts_ignorers (player) VALUES ($1) ON CONFLICT DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("add ignorer %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) RemoveIgnorer(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM gts_ignorers WHERE player = $1`, id); err != nil {
		return fmt.Errorf("remove ignorer %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Ignorers(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT player FROM gts_ignorers`)
	if err != nil {
		return nil, fmt.Errorf("list ignorers: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Purge deletes listings (and optionally logs) inside one transaction.
func (s *PostgresStore) Purge(ctx context.Context, logs bool) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM gts_listings`); err != nil {
			return fmt.Errorf("purge listings: %w", err)
		}
		if logs {
			if _, err := tx.Exec(ctx, `DELETE FROM gts_logs`); err != nil {
				return fmt.Errorf("purge logs: %w", err)
			}
		}
		return nil
	})
}

// deleteByID removes one row by primary key. Table names are internal
// constants, never caller input.
func (s *PostgresStore) deleteByID(ctx context.Context, table, what string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove %s %s: %w", what, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("remove %s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

// pgxRows is the subset of pgx.Rows the scanners need.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanListings reads listing rows. Amount columns arrive as text.
func scanListings(rows pgxRows) ([]model.ListingRecord, error) {
	var out []model.ListingRecord
	for rows.Next() {
		var rec model.ListingRecord
		var priceS, incS string
		var highBidS *string
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.OwnerName, &rec.EntryKind, &rec.EntryBlob, &rec.Auction,
			&priceS, &incS, &highBidS, &rec.HighBidder, &rec.BidderName,
			&rec.Buyer, &rec.BuyerName, &rec.CreatedAt, &rec.ExpiresAt, &rec.Status, &rec.Settled); err != nil {
			return nil, err
		}
		var err error
		if rec.Price, err = decimal.NewFromString(priceS); err != nil {
			return nil, fmt.Errorf("listing %s price: %w", rec.ID, err)
		}
		rec.Increment, _ = decimal.NewFromString(incS)
		if highBidS != nil {
			hb, err := decimal.NewFromString(*highBidS)
			if err != nil {
				return nil, fmt.Errorf("listing %s high bid: %w", rec.ID, err)
			}
			rec.HighBid = &hb
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func decimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
