package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/atmx/gts-market/internal/model"
)

// SQLiteStore implements Backend on a single SQLite file. Amounts and
// timestamps are stored as TEXT so decimals round-trip exactly.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// NewSQLiteStore creates a store backed by the file at path. The file is
// opened by Init.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
	"PRAGMA temp_store=MEMORY;",
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		owner_name TEXT NOT NULL,
		entry_kind TEXT NOT NULL,
		entry_blob BLOB NOT NULL,
		auction INTEGER NOT NULL,
		price TEXT NOT NULL,
		increment TEXT NOT NULL,
		high_bid TEXT,
		high_bidder TEXT,
		bidder_name TEXT NOT NULL,
		buyer TEXT,
		buyer_name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT,
		status TEXT NOT NULL,
		settled INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS logs (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		action TEXT NOT NULL,
		summary TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS logs_owner_idx ON logs(owner, created_at);`,
	`CREATE TABLE IF NOT EXISTS held_entries (
		id TEXT PRIMARY KEY,
		recipient TEXT NOT NULL,
		entry_kind TEXT NOT NULL,
		entry_blob BLOB NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS held_prices (
		id TEXT PRIMARY KEY,
		recipient TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS ignorers (
		player TEXT PRIMARY KEY
	);`,
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range append(append([]string{}, sqlitePragmas...), sqliteSchema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("init sqlite: %w", err)
		}
	}
	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save checkpoints the write-ahead log into the main database file.
func (s *SQLiteStore) Save(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("checkpoint sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddListing(ctx context.Context, rec model.ListingRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (id, owner, owner_name, entry_kind, entry_blob, auction,
		        price, increment, high_bid, high_bidder, bidder_name, buyer, buyer_name,
		        created_at, expires_at, status, settled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Owner.String(), rec.OwnerName, rec.EntryKind, rec.EntryBlob, rec.Auction,
		rec.Price.String(), rec.Increment.String(), decimalPtrString(rec.HighBid),
		uuidPtrString(rec.HighBidder), rec.BidderName, uuidPtrString(rec.Buyer), rec.BuyerName,
		formatTime(rec.CreatedAt), timePtrString(rec.ExpiresAt), rec.Status, rec.Settled,
	)
	if err != nil {
		return fmt.Errorf("add listing %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateListing(ctx context.Context, rec model.ListingRecord) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings
		 SET high_bid = ?, high_bidder = ?, bidder_name = ?,
		     buyer = ?, buyer_name = ?, expires_at = ?, status = ?, settled = ?
		 WHERE id = ?`,
		decimalPtrString(rec.HighBid), uuidPtrString(rec.HighBidder), rec.BidderName,
		uuidPtrString(rec.Buyer), rec.BuyerName, timePtrString(rec.ExpiresAt), rec.Status, rec.Settled,
		rec.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", rec.ID, err)
	}
	return requireRow(res, "update listing", rec.ID)
}

func (s *SQLiteStore) RemoveListing(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "listings", "listing", id)
}

func (s *SQLiteStore) Listings(ctx context.Context) ([]model.ListingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, owner_name, entry_kind, entry_blob, auction,
		        price, increment, high_bid, high_bidder, bidder_name,
		        buyer, buyer_name, created_at, expires_at, status, settled
		 FROM listings ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []model.ListingRecord
	for rows.Next() {
		var (
			rec                            model.ListingRecord
			id, owner, price, inc, created string
			highBid, highBidder, buyer     sql.NullString
			expires                        sql.NullString
		)
		if err := rows.Scan(&id, &owner, &rec.OwnerName, &rec.EntryKind, &rec.EntryBlob, &rec.Auction,
			&price, &inc, &highBid, &highBidder, &rec.BidderName,
			&buyer, &rec.BuyerName, &created, &expires, &rec.Status, &rec.Settled); err != nil {
			return nil, err
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("listing id %q: %w", id, err)
		}
		if rec.Owner, err = uuid.Parse(owner); err != nil {
			return nil, fmt.Errorf("listing %s owner: %w", rec.ID, err)
		}
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("listing %s price: %w", rec.ID, err)
		}
		rec.Increment, _ = decimal.NewFromString(inc)
		if highBid.Valid {
			hb, err := decimal.NewFromString(highBid.String)
			if err != nil {
				return nil, fmt.Errorf("listing %s high bid: %w", rec.ID, err)
			}
			rec.HighBid = &hb
		}
		rec.HighBidder = parseNullUUID(highBidder)
		rec.Buyer = parseNullUUID(buyer)
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("listing %s created_at: %w", rec.ID, err)
		}
		if expires.Valid {
			t, err := time.Parse(time.RFC3339Nano, expires.String)
			if err != nil {
				return nil, fmt.Errorf("listing %s expires_at: %w", rec.ID, err)
			}
			rec.ExpiresAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddLog(ctx context.Context, l model.Log) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (id, owner, listing_id, action, summary, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.Owner.String(), l.ListingID.String(), l.Action, l.Summary, formatTime(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("add log %s: %w", l.ID, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveLog(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "logs", "log", id)
}

func (s *SQLiteStore) Logs(ctx context.Context, owner uuid.UUID) ([]model.Log, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, listing_id, action, summary, created_at
		 FROM logs WHERE owner = ? ORDER BY created_at`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("logs for %s: %w", owner, err)
	}
	defer rows.Close()

	var out []model.Log
	for rows.Next() {
		var id, listingID, created string
		l := model.Log{Owner: owner}
		if err := rows.Scan(&id, &listingID, &l.Action, &l.Summary, &created); err != nil {
			return nil, err
		}
		if l.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("log id %q: %w", id, err)
		}
		l.ListingID, _ = uuid.Parse(listingID)
		if l.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("log %s created_at: %w", l.ID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddHeldEntry(ctx context.Context, rec model.HeldEntryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO held_entries (id, recipient, entry_kind, entry_blob, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Recipient.String(), rec.EntryKind, rec.EntryBlob, rec.Reason, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("add held entry %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveHeldEntry(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "held_entries", "held entry", id)
}

func (s *SQLiteStore) HeldEntries(ctx context.Context) ([]model.HeldEntryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient, entry_kind, entry_blob, reason, created_at FROM held_entries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list held entries: %w", err)
	}
	defer rows.Close()

	var out []model.HeldEntryRecord
	for rows.Next() {
		var h model.HeldEntryRecord
		var id, recipient, created string
		if err := rows.Scan(&id, &recipient, &h.EntryKind, &h.EntryBlob, &h.Reason, &created); err != nil {
			return nil, err
		}
		if h.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("held entry id %q: %w", id, err)
		}
		h.Recipient, _ = uuid.Parse(recipient)
		h.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddHeldPrice(ctx context.Context, rec model.HeldPriceRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO held_prices (id, recipient, amount, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Recipient.String(), rec.Amount.String(), rec.Reason, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("add held price %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveHeldPrice(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "held_prices", "held price", id)
}

func (s *SQLiteStore) HeldPrices(ctx context.Context) ([]model.HeldPriceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient, amount, reason, created_at FROM held_prices ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list held prices: %w", err)
	}
	defer rows.Close()

	var out []model.HeldPriceRecord
	for rows.Next() {
		var h model.HeldPriceRecord
		var id, recipient, amount, created string
		if err := rows.Scan(&id, &recipient, &amount, &h.Reason, &created); err != nil {
			return nil, err
		}
		if h.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("held price id %q: %w", id, err)
		}
		if h.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("held price %s amount: %w", h.ID, err)
		}
		h.Recipient, _ = uuid.Parse(recipient)
		h.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddIgnorer(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO ignorers (player) VALUES (?)`, id.String()); err != nil {
		return fmt.Errorf("add ignorer %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveIgnorer(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ignorers WHERE player = ?`, id.String()); err != nil {
		return fmt.Errorf("remove ignorer %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Ignorers(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT player FROM ignorers`)
	if err != nil {
		return nil, fmt.Errorf("list ignorers: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("ignorer %q: %w", raw, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Purge(ctx context.Context, logs bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM listings`); err != nil {
		return fmt.Errorf("purge listings: %w", err)
	}
	if logs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM logs`); err != nil {
			return fmt.Errorf("purge logs: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) deleteByID(ctx context.Context, table, what string, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("remove %s %s: %w", what, id, err)
	}
	return requireRow(res, "remove "+what, id)
}

func requireRow(res sql.Result, op string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

// sqliteTime keeps fixed-width fractions so TEXT ordering matches time order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTime) }

func timePtrString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseNullUUID(ns sql.NullString) *uuid.UUID {
	if !ns.Valid {
		return nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil
	}
	return &id
}
