// Package cachefs implements the file-based cache for stock records and
// index universes. Every write goes to a temp file that is renamed into
// place, so a crash never leaves a partial record behind.
package cachefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bobmcallan/growthfund/internal/adapter"
	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/interfaces"
	"github.com/bobmcallan/growthfund/internal/models"
)

// Store provides file-based JSON storage for stock records and constituents.
type Store struct {
	basePath        string
	stocksDir       string
	constituentsDir string
	logger          *common.Logger
}

var (
	_ interfaces.StockCache       = (*Store)(nil)
	_ interfaces.ConstituentCache = (*Store)(nil)
)

// NewStore creates the cache directories under path.
func NewStore(logger *common.Logger, cfg common.StorageConfig) (*Store, error) {
	s := &Store{
		basePath:        cfg.CachePath,
		stocksDir:       cfg.StocksPath(),
		constituentsDir: cfg.ConstituentsPath(),
		logger:          logger,
	}
	for _, dir := range []string{s.stocksDir, s.constituentsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache path %s: %w", dir, err)
		}
	}
	logger.Debug().Str("path", s.basePath).Msg("Cache store opened")
	return s, nil
}

// DataPath returns the base cache path.
func (s *Store) DataPath() string {
	return s.basePath
}

// GetStock loads a cached record. Missing records return common.ErrNotFound.
func (s *Store) GetStock(_ context.Context, symbol string) (*models.StockRecord, error) {
	var stock models.StockRecord
	if err := readJSON(s.stocksDir, StockKey(symbol), &stock); err != nil {
		return nil, fmt.Errorf("stock cache for '%s': %w", symbol, err)
	}
	return &stock, nil
}

// SaveStock writes a record atomically.
func (s *Store) SaveStock(_ context.Context, stock *models.StockRecord) error {
	if err := writeJSON(s.stocksDir, StockKey(stock.Symbol), stock); err != nil {
		return fmt.Errorf("failed to save stock %s: %w", stock.Symbol, err)
	}
	s.logger.Debug().Str("symbol", stock.Symbol).Msg("Stock cached")
	return nil
}

// ListSymbols returns the symbols of every cached record, sorted.
func (s *Store) ListSymbols(_ context.Context) ([]string, error) {
	keys, err := listKeys(s.stocksDir)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(keys))
	for _, key := range keys {
		var stock models.StockRecord
		if err := readJSON(s.stocksDir, key, &stock); err != nil {
			s.logger.Warn().Str("key", key).Err(err).Msg("Skipping unreadable cache entry")
			continue
		}
		symbols = append(symbols, stock.Symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// GetConstituents loads a cached universe for market and period.
func (s *Store) GetConstituents(_ context.Context, market, period string) ([]models.Constituent, error) {
	var list []models.Constituent
	if err := readJSON(s.constituentsDir, constituentsKey(market, period), &list); err != nil {
		return nil, fmt.Errorf("constituents for %s %s: %w", market, period, err)
	}
	return list, nil
}

// SaveConstituents writes a universe atomically.
func (s *Store) SaveConstituents(_ context.Context, market, period string, constituents []models.Constituent) error {
	if err := writeJSON(s.constituentsDir, constituentsKey(market, period), constituents); err != nil {
		return fmt.Errorf("failed to save constituents: %w", err)
	}
	s.logger.Info().Str("market", market).Str("period", period).
		Int("count", len(constituents)).Msg("Constituents cached")
	return nil
}

// PurgeStocks removes all cached stock records and returns the count.
func (s *Store) PurgeStocks() int {
	keys, err := listKeys(s.stocksDir)
	if err != nil {
		return 0
	}
	for _, key := range keys {
		os.Remove(filePath(s.stocksDir, key))
	}
	return len(keys)
}

// StockKey maps a qualified symbol to its file key, e.g. AAPL.US to AAPL_US.
func StockKey(symbol string) string {
	return adapter.CacheKey(strings.ToUpper(symbol))
}

func constituentsKey(market, period string) string {
	return strings.ToUpper(market) + "_" + period
}

// WriteFileAtomic writes data to dir/name through a temp file and rename.
func WriteFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	target := filepath.Join(dir, sanitizeKey(name))

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// --- helpers ---

func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

func filePath(dir, key string) string {
	return filepath.Join(dir, sanitizeKey(key)+".json")
}

func readJSON(dir, key string, dest interface{}) error {
	path := filePath(dir, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return common.ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: '%s' is empty", common.ErrNotFound, key)
	}
	return json.Unmarshal(data, dest)
}

func writeJSON(dir, key string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonData = append(jsonData, '\n')
	return WriteFileAtomic(dir, sanitizeKey(key)+".json", jsonData)
}

func listKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".tmp-") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	return keys, nil
}
