// Package engine runs reconciliation passes against a calendar document.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"relcal/internal/dom"
	appLog "relcal/internal/log"
	"relcal/internal/relative"
	"relcal/internal/schedule"
	"relcal/internal/settings"
)

// Target provides document snapshots and persists the writes a pass made
// to them.
type Target interface {
	Snapshot(ctx context.Context) (dom.Document, error)
	Commit(ctx context.Context, doc dom.Document) error
}

// Result describes the last completed pass.
type Result struct {
	ID       string            `json:"id"`
	At       time.Time         `json:"at"`
	Signals  string            `json:"signals"`
	Settings settings.Settings `json:"settings"`
	Stats    dom.Stats         `json:"stats"`
	Error    string            `json:"error,omitempty"`
}

type Engine struct {
	target Target
	cache  *settings.Cache
	now    func() time.Time

	mu   sync.Mutex
	last *Result
}

type Options struct {
	// Location for "now". Nil means time.Local.
	Location *time.Location
	// Now overrides the wall clock, mostly for tests and --now.
	Now func() time.Time
}

func New(target Target, cache *settings.Cache, opts Options) *Engine {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		target: target,
		cache:  cache,
		now:    func() time.Time { return now().In(loc) },
	}
}

// Pass runs one reconciliation pass. It matches schedule.PassFunc.
func (e *Engine) Pass(ctx context.Context, signals schedule.Signal) error {
	res := Result{
		ID:      uuid.NewString(),
		Signals: signals.String(),
	}

	res.Settings = e.cache.Refresh(ctx)
	now := relative.Now(e.now())
	res.At = now

	err := e.reconcile(ctx, &res, now)
	if err != nil {
		res.Error = err.Error()
	}
	e.mu.Lock()
	e.last = &res
	e.mu.Unlock()

	if err != nil {
		return err
	}

	appLog.Debug("pass complete",
		"pass", res.ID,
		"signals", res.Signals,
		"enabled", res.Settings.Enabled,
		"events", res.Stats.Events,
		"inserted", res.Stats.Inserted,
		"updated", res.Stats.Updated,
		"removed", res.Stats.Removed,
		"skipped", res.Stats.Skipped,
	)
	return nil
}

func (e *Engine) reconcile(ctx context.Context, res *Result, now time.Time) error {
	doc, err := e.target.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("engine: snapshot: %w", err)
	}
	res.Stats = dom.Reconcile(doc, res.Settings, now)
	if res.Stats.Mutations() == 0 {
		return nil
	}
	if err := e.target.Commit(ctx, doc); err != nil {
		return fmt.Errorf("engine: commit: %w", err)
	}
	return nil
}

// Last returns the most recent pass result, or nil before the first pass.
func (e *Engine) Last() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	r := *e.last
	return &r
}
