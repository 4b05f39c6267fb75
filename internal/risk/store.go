package risk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"riskgate/internal/domain"

	"github.com/shopspring/decimal"
)

// stateVersion is bumped whenever the on-disk layout changes.
const stateVersion = 1

// defaultStateFile is substituted when the configured file name escapes
// the base directory.
const defaultStateFile = "exposures.json"

// DefaultCapacity bounds the exposure map. Overflow evicts the oldest
// entry with a warning; a safety valve against a malfunctioning caller,
// not an accounting guarantee.
const DefaultCapacity = 64

// persistedState is the on-disk document. Checksum is a keyed HMAC over
// the canonical JSON encoding of Data; a file that fails verification is
// treated as empty, never trusted.
type persistedState struct {
	Data      stateData `json:"data"`
	Checksum  string    `json:"checksum"`
	Timestamp int64     `json:"timestamp"`
	Version   int       `json:"version"`
}

type stateData struct {
	Orders map[string]domain.OpenExposure `json:"orders"`
}

// StoreConfig configures a Store.
type StoreConfig struct {
	BaseDir  string
	FileName string
	Secret   string
	Capacity int
}

// Store is the persisted order store: the durable, integrity-checked map of
// open exposures. Every mutation happens under one exclusive lock covering
// "mutate in memory, then persist", so concurrent callers never observe or
// produce an inconsistent snapshot on disk.
type Store struct {
	mu       sync.Mutex
	path     string
	secret   []byte
	capacity int
	orders   map[string]domain.OpenExposure
}

// NewStore resolves and verifies the persistence path, loads any existing
// state (discarding it loudly on integrity failure) and returns a ready
// store. The base directory is created if missing.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.FileName == "" {
		cfg.FileName = defaultStateFile
	}

	path, err := resolveStatePath(cfg.BaseDir, cfg.FileName)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:     path,
		secret:   []byte(cfg.Secret),
		capacity: cfg.Capacity,
		orders:   make(map[string]domain.OpenExposure),
	}
	s.load()
	return s, nil
}

// resolveStatePath canonicalizes the base directory and verifies the state
// file falls strictly inside it. A file name that resolves outside the base
// is rejected and the safe default substituted.
func resolveStatePath(baseDir, fileName string) (string, error) {
	if baseDir == "" {
		baseDir = "data"
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}

	base, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return "", fmt.Errorf("canonicalize state dir: %w", err)
	}
	base, err = filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("canonicalize state dir: %w", err)
	}

	candidate := filepath.Clean(filepath.Join(base, fileName))
	if !strings.HasPrefix(candidate, base+string(filepath.Separator)) {
		pathErr := &domain.PathSecurityError{Path: fileName}
		slog.Error("State file path rejected, substituting default",
			slog.String("file", fileName),
			slog.String("error", pathErr.Error()))
		candidate = filepath.Join(base, defaultStateFile)
	}
	return candidate, nil
}

// load reads the state file. Absence means a fresh start; a checksum
// mismatch discards the state with a loud warning rather than trusting it.
func (s *Store) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("State file unreadable, starting empty",
				slog.String("path", s.path), slog.Any("error", err))
		}
		return
	}

	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		slog.Warn("State file corrupt, starting empty",
			slog.String("path", s.path), slog.Any("error", err))
		return
	}

	expected, err := s.checksum(state.Data)
	if err != nil {
		slog.Warn("State checksum recompute failed, starting empty", slog.Any("error", err))
		return
	}
	// Constant-time compare; the checksum is keyed by the signing secret.
	if !hmac.Equal([]byte(expected), []byte(state.Checksum)) {
		slog.Warn("State integrity check FAILED, discarding persisted exposures",
			slog.String("path", s.path),
			slog.String("error", domain.ErrIntegrity.Error()))
		return
	}

	if state.Data.Orders != nil {
		s.orders = state.Data.Orders
	}
	slog.Info("Persisted exposures loaded",
		slog.String("path", s.path), slog.Int("count", len(s.orders)))
}

// checksum computes the keyed integrity tag over the canonical encoding of
// the data. encoding/json sorts map keys, so the encoding is deterministic.
func (s *Store) checksum(data stateData) (string, error) {
	canonical, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, s.secret)
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// persistLocked serializes the full map and writes it crash-safely: temp
// file in the target directory, flush to stable storage, atomic rename.
// Callers must hold s.mu.
func (s *Store) persistLocked() error {
	data := stateData{Orders: s.orders}
	sum, err := s.checksum(data)
	if err != nil {
		return fmt.Errorf("checksum: %w", err)
	}

	state := persistedState{
		Data:      data,
		Checksum:  sum,
		Timestamp: time.Now().UnixMilli(),
		Version:   stateVersion,
	}
	raw, err := json.Marshal(&state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".exposures-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// CheckAndRegister atomically checks for an existing exposure on
// (symbol, direction) and, if absent, inserts and persists it. The check
// and the insert share one critical section: splitting them would open a
// check-then-act race between callers.
func (s *Store) CheckAndRegister(symbol string, direction domain.Direction, volume, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.ExposureKey(symbol, direction)
	if _, exists := s.orders[key]; exists {
		return &domain.DuplicateExposureError{Symbol: symbol, Direction: direction}
	}

	if len(s.orders) >= s.capacity {
		s.evictOldestLocked()
	}

	s.orders[key] = domain.OpenExposure{
		Volume:       volume,
		Price:        price,
		RegisteredAt: time.Now().UTC(),
	}

	if err := s.persistLocked(); err != nil {
		// Roll back so memory and disk stay consistent.
		delete(s.orders, key)
		return fmt.Errorf("persist exposure: %w", err)
	}
	return nil
}

// Unregister removes the exposure for (symbol, direction) and re-persists.
// Removing an absent key is a no-op.
func (s *Store) Unregister(symbol string, direction domain.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.ExposureKey(symbol, direction)
	prev, exists := s.orders[key]
	if !exists {
		return nil
	}
	delete(s.orders, key)

	if err := s.persistLocked(); err != nil {
		s.orders[key] = prev
		return fmt.Errorf("persist exposure removal: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the exposure map under the lock.
func (s *Store) Snapshot() map[string]domain.OpenExposure {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.OpenExposure, len(s.orders))
	for k, v := range s.orders {
		out[k] = v
	}
	return out
}

// Has reports whether an exposure exists for (symbol, direction).
func (s *Store) Has(symbol string, direction domain.Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[domain.ExposureKey(symbol, direction)]
	return ok
}

// Len returns the number of open exposures.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// Path returns the resolved state file path.
func (s *Store) Path() string {
	return s.path
}

// evictOldestLocked drops the entry with the oldest RegisteredAt. Bounded
// growth wins over position accuracy here; the eviction is logged loudly
// so the discrepancy can be audited. Callers must hold s.mu.
func (s *Store) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, v := range s.orders {
		if oldestKey == "" || v.RegisteredAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = v.RegisteredAt
		}
	}
	if oldestKey != "" {
		slog.Warn("Exposure capacity reached, evicting oldest entry",
			slog.String("key", oldestKey),
			slog.Time("registered_at", oldestAt),
			slog.Int("capacity", s.capacity))
		delete(s.orders, oldestKey)
	}
}
