package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appLog "relcal/internal/log"
)

// Storage keys shared with the settings surface.
const (
	KeyEnabled   = "enableExtension"
	KeyShowYears = "showYearsForLongPeriods"
)

// Keys lists every recognized key.
var Keys = []string{KeyEnabled, KeyShowYears}

// ErrUnavailable means the store could not be read.
var ErrUnavailable = errors.New("settings unavailable")

// Settings is the per-pass configuration of the reconciler.
type Settings struct {
	Enabled   bool `json:"enableExtension"`
	ShowYears bool `json:"showYearsForLongPeriods"`
}

// Default is used when nothing was ever stored.
func Default() Settings {
	return Settings{Enabled: true, ShowYears: true}
}

// Store is a small asynchronous key-value persistence service.
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string]any, error)
	Set(ctx context.Context, values map[string]any) error
}

// FromValues applies the default policy: a flag is on unless its stored
// value is exactly false.
func FromValues(values map[string]any) Settings {
	return Settings{
		Enabled:   notFalse(values[KeyEnabled]),
		ShowYears: notFalse(values[KeyShowYears]),
	}
}

// Values is the inverse of FromValues.
func (s Settings) Values() map[string]any {
	return map[string]any{
		KeyEnabled:   s.Enabled,
		KeyShowYears: s.ShowYears,
	}
}

func notFalse(v any) bool {
	b, ok := v.(bool)
	return !ok || b
}

// Load reads the settings from store.
func Load(ctx context.Context, store Store) (Settings, error) {
	values, err := store.Get(ctx, Keys...)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: get: %v: %w", err, ErrUnavailable)
	}
	return FromValues(values), nil
}

// Cache keeps the last successfully loaded settings so a failing store
// degrades to stale values instead of stopping reconciliation.
type Cache struct {
	store Store

	mu   sync.Mutex
	last Settings
}

func NewCache(store Store) *Cache {
	return &Cache{store: store, last: Default()}
}

// Refresh reloads from the store, falling back to the last known values.
func (c *Cache) Refresh(ctx context.Context) Settings {
	s, err := Load(ctx, c.store)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		appLog.Error("settings load failed; using last known", err,
			"enabled", c.last.Enabled,
			"show_years", c.last.ShowYears,
		)
		return c.last
	}
	c.last = s
	return s
}

// Last returns the most recent value without touching the store.
func (c *Cache) Last() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
