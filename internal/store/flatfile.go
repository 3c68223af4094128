package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/atmx/gts-market/internal/model"
)

const flatFileVersion = 1

// flatFileSnapshot is the on-disk document. The header line preceding it
// carries the version and write time for quick inspection.
type flatFileSnapshot struct {
	Version     int                     `json:"version"`
	SavedAt     time.Time               `json:"saved_at"`
	Listings    []model.ListingRecord   `json:"listings"`
	Logs        []model.Log             `json:"logs"`
	HeldEntries []model.HeldEntryRecord `json:"held_entries"`
	HeldPrices  []model.HeldPriceRecord `json:"held_prices"`
	Ignorers    []uuid.UUID             `json:"ignorers"`
}

// FlatFileStore keeps state in memory and persists it as a single
// zstd-compressed JSON snapshot on Save. Writes between saves are lost on
// crash; the market saves on a timer and at shutdown.
type FlatFileStore struct {
	*MemoryStore
	path string
}

// NewFlatFileStore creates a store that snapshots to path.
func NewFlatFileStore(path string) *FlatFileStore {
	return &FlatFileStore{MemoryStore: NewMemoryStore(), path: path}
}

func (s *FlatFileStore) Name() string { return "flatfile" }

// Init loads the snapshot at path. A missing file starts an empty market.
func (s *FlatFileStore) Init(_ context.Context) error {
	snap, err := readFlatFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range snap.Listings {
		s.listings[rec.ID] = rec
	}
	for _, l := range snap.Logs {
		s.logs[l.ID] = l
	}
	for _, rec := range snap.HeldEntries {
		s.heldEntries[rec.ID] = rec
	}
	for _, rec := range snap.HeldPrices {
		s.heldPrices[rec.ID] = rec
	}
	for _, id := range snap.Ignorers {
		s.ignorers[id] = struct{}{}
	}
	return nil
}

// Save writes the snapshot to a temp file and renames it over path.
func (s *FlatFileStore) Save(_ context.Context) error {
	snap := s.snapshot()
	if err := writeFlatFile(s.path, snap); err != nil {
		return fmt.Errorf("write snapshot %s: %w", s.path, err)
	}
	return nil
}

func (s *FlatFileStore) snapshot() flatFileSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := flatFileSnapshot{Version: flatFileVersion, SavedAt: time.Now().UTC()}
	for _, rec := range s.listings {
		snap.Listings = append(snap.Listings, cloneListing(rec))
	}
	for _, l := range s.logs {
		snap.Logs = append(snap.Logs, l)
	}
	for _, rec := range s.heldEntries {
		snap.HeldEntries = append(snap.HeldEntries, rec)
	}
	for _, rec := range s.heldPrices {
		snap.HeldPrices = append(snap.HeldPrices, rec)
	}
	for id := range s.ignorers {
		snap.Ignorers = append(snap.Ignorers, id)
	}
	return snap
}

func writeFlatFile(path string, snap flatFileSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := encodeFlatFile(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encodeFlatFile(f *os.File, snap flatFileSnapshot) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(struct {
		Version int       `json:"version"`
		SavedAt time.Time `json:"saved_at"`
	}{snap.Version, snap.SavedAt})
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func readFlatFile(path string) (flatFileSnapshot, error) {
	var snap flatFileSnapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line; the body repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("json decode: %w", err)
	}
	if snap.Version != flatFileVersion {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return snap, nil
}
