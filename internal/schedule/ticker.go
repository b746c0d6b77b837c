package schedule

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "relcal/internal/log"
)

// DefaultTickSpec refreshes labels every minute so "3h" becomes "2h"
// without any page change.
const DefaultTickSpec = "* * * * *"

// Ticker emits SignalTick on a cron schedule.
type Ticker struct {
	spec string
	cron *cron.Cron

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Signal)
}

// ValidateSpec reports whether spec is a valid standard cron expression.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule: invalid cron spec %q: %w", spec, err)
	}
	return nil
}

func NewTicker(spec string) (*Ticker, error) {
	if spec == "" {
		spec = DefaultTickSpec
	}
	t := &Ticker{
		spec: spec,
		cron: cron.New(),
		subs: make(map[int]func(Signal)),
	}
	if _, err := t.cron.AddFunc(spec, t.tick); err != nil {
		return nil, fmt.Errorf("schedule: invalid cron spec %q: %w", spec, err)
	}
	return t, nil
}

func (t *Ticker) Subscribe(fn func(Signal)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *Ticker) Start() {
	appLog.Info("label refresh scheduled", "cron", t.spec)
	t.cron.Start()
}

// Stop halts the schedule and waits for a running tick to return.
func (t *Ticker) Stop() {
	<-t.cron.Stop().Done()
}

func (t *Ticker) tick() {
	t.mu.Lock()
	fns := make([]func(Signal), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(SignalTick)
	}
}

// SourceFunc adapts a subscribe function to Source.
type SourceFunc func(fn func(Signal)) (cancel func())

func (f SourceFunc) Subscribe(fn func(Signal)) func() {
	return f(fn)
}
