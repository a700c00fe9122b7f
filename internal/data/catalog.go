// Package data provides the historical return-series catalog and series
// quality validation.
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// ErrSeriesNotFound is returned when a catalog lookup misses
var ErrSeriesNotFound = errors.New("series not found")

// Series is one asset's annual return history as stored on disk
type Series struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	AssetClass types.AssetClass `json:"assetClass"`
	StartYear  int              `json:"startYear"`
	Returns    []float64        `json:"returns"`
}

// EndYear returns the last calendar year the series covers
func (s *Series) EndYear() int {
	if len(s.Returns) == 0 {
		return s.StartYear
	}
	return s.StartYear + len(s.Returns) - 1
}

// SeriesInfo is the listing view of a catalog entry
type SeriesInfo struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	AssetClass types.AssetClass `json:"assetClass"`
	StartYear  int              `json:"startYear"`
	EndYear    int              `json:"endYear"`
	Years      int              `json:"years"`
}

// Catalog serves per-asset annual return series from a data directory, one
// JSON document per series, cached after first load.
type Catalog struct {
	mu      sync.Mutex
	logger  *zap.Logger
	dataDir string
	cache   map[string]*Series
	ids     []string
}

// NewCatalog scans dataDir for series documents. A missing directory gives
// an empty catalog, not an error.
func NewCatalog(logger *zap.Logger, dataDir string) (*Catalog, error) {
	c := &Catalog{
		logger:  logger,
		dataDir: dataDir,
		cache:   make(map[string]*Series),
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Data directory missing, catalog starts empty",
				zap.String("data_dir", dataDir))
			return c, nil
		}
		return nil, fmt.Errorf("failed to scan data directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		c.ids = append(c.ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(c.ids)

	logger.Info("Catalog ready",
		zap.String("data_dir", dataDir),
		zap.Int("series", len(c.ids)))

	return c, nil
}

// Get returns the series with the given id, loading it from disk on first
// access. Callers must not mutate the returned series.
func (c *Catalog) Get(id string) (*Series, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache[id]; ok {
		return cached, nil
	}

	filename := filepath.Join(c.dataDir, id+".json")
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSeriesNotFound, id)
		}
		return nil, fmt.Errorf("failed to read series %s: %w", id, err)
	}

	var series Series
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("failed to parse series %s: %w", id, err)
	}
	if series.ID == "" {
		series.ID = id
	}
	if series.AssetClass == "" {
		series.AssetClass = types.AssetClassEquityIndex
	}

	c.cache[id] = &series
	return &series, nil
}

// List returns metadata for every series the catalog knows about.
// Unreadable documents are skipped with a warning.
func (c *Catalog) List() []SeriesInfo {
	ids := c.IDs()

	infos := make([]SeriesInfo, 0, len(ids))
	for _, id := range ids {
		series, err := c.Get(id)
		if err != nil {
			c.logger.Warn("Skipping unreadable series",
				zap.String("id", id), zap.Error(err))
			continue
		}
		infos = append(infos, SeriesInfo{
			ID:         series.ID,
			Name:       series.Name,
			AssetClass: series.AssetClass,
			StartYear:  series.StartYear,
			EndYear:    series.EndYear(),
			Years:      len(series.Returns),
		})
	}
	return infos
}

// Save writes a series document to the data directory and refreshes the
// cache entry.
func (c *Catalog) Save(series *Series) error {
	if series.ID == "" {
		return fmt.Errorf("series id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	raw, err := json.MarshalIndent(series, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal series %s: %w", series.ID, err)
	}

	filename := filepath.Join(c.dataDir, series.ID+".json")
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write series %s: %w", series.ID, err)
	}

	c.cache[series.ID] = series
	found := false
	for _, id := range c.ids {
		if id == series.ID {
			found = true
			break
		}
	}
	if !found {
		c.ids = append(c.ids, series.ID)
		sort.Strings(c.ids)
	}

	return nil
}

// IDs returns the known series ids in sorted order
func (c *Catalog) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, len(c.ids))
	copy(ids, c.ids)
	return ids
}

// ClearCache drops all cached series
func (c *Catalog) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*Series)
}

// CacheSize returns the number of series currently cached
func (c *Catalog) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.cache)
}
