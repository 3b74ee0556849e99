// Package registry keeps one prepared payroll engine per country and tax
// year and swaps them atomically on reload. A document that fails to
// prepare never replaces an engine that already works.
package registry

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/opspay/payroll/dsl"
	"github.com/opspay/payroll/internal/logger"
	"github.com/opspay/payroll/internal/metrics"
	"github.com/opspay/payroll/payroll"
)

// Key identifies one jurisdiction and tax year.
type Key struct {
	Country string
	Year    int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Country, k.Year)
}

// Registry holds prepared engines keyed by country and year.
// Safe for concurrent use; lookups take a read lock only.
type Registry struct {
	engines map[Key]*payroll.Engine
	mu      sync.RWMutex
	metrics *metrics.Metrics
}

// New creates an empty registry. metrics may be nil.
func New(m *metrics.Metrics) *Registry {
	return &Registry{
		engines: make(map[Key]*payroll.Engine),
		metrics: m,
	}
}

// Engine returns the prepared engine for a country and year.
func (r *Registry) Engine(country string, year int) (*payroll.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	en, ok := r.engines[Key{Country: strings.ToUpper(country), Year: year}]
	return en, ok
}

// Keys returns the loaded keys sorted by country then year.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.engines))
	for k := range r.engines {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Country != keys[j].Country {
			return keys[i].Country < keys[j].Country
		}
		return keys[i].Year < keys[j].Year
	})
	return keys
}

// Len returns the number of loaded engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// Load prepares rs and installs the engine under its meta key. On failure
// the previously installed engine, if any, stays in place.
func (r *Registry) Load(rs payroll.RuleSet) error {
	key := Key{Country: strings.ToUpper(rs.Meta.Country), Year: rs.Meta.Year}
	year := strconv.Itoa(key.Year)

	en, err := payroll.Prepare(rs)
	if err != nil {
		r.metrics.IncrementPrepare(key.Country, year, "rejected")
		return fmt.Errorf("prepare %s: %w", key, err)
	}
	r.metrics.IncrementPrepare(key.Country, year, "ok")

	r.mu.Lock()
	r.engines[key] = en
	size := len(r.engines)
	r.mu.Unlock()

	r.metrics.SetEnginesLoaded(size)
	logger.Info("rule set loaded",
		"country", key.Country,
		"year", key.Year,
		"rules", len(rs.Rules),
	)
	return nil
}

// LoadFile loads one rule set document from disk.
func (r *Registry) LoadFile(path string) error {
	rs, err := dsl.LoadFile(path)
	if err != nil {
		return err
	}
	return r.Load(rs)
}

// LoadDir walks dir and loads every .jsonc document found. Broken
// documents are logged and skipped so one bad file does not block the
// rest; the first error is returned after the walk finishes.
func (r *Registry) LoadDir(dir string) error {
	var firstErr error
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonc" {
			return nil
		}
		if err := r.LoadFile(path); err != nil {
			logger.Error("failed to load rule set", "path", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}
	return firstErr
}

// LoadStore loads every active document from a rule set store.
func (r *Registry) LoadStore(store payroll.RuleSetStore) error {
	sets, err := store.ListActive()
	if err != nil {
		return fmt.Errorf("list active rule sets: %w", err)
	}

	var firstErr error
	for _, stored := range sets {
		rs, err := dsl.Parse(stored.Document)
		if err == nil {
			err = r.Load(rs)
		}
		if err != nil {
			logger.Error("failed to load stored rule set", "id", stored.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
