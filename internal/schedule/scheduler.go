package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appLog "relcal/internal/log"
)

// Signal is a kind of change that may require a new pass.
type Signal int

const (
	SignalMutation Signal = 1 << iota
	SignalVisible
	SignalNavigation
	SignalSettings
	SignalTick
)

func (s Signal) String() string {
	names := []struct {
		bit  Signal
		name string
	}{
		{SignalMutation, "mutation"},
		{SignalVisible, "visible"},
		{SignalNavigation, "navigation"},
		{SignalSettings, "settings"},
		{SignalTick, "tick"},
	}
	out := ""
	for _, n := range names {
		if s&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

// Source is anything that emits change signals.
type Source interface {
	Subscribe(fn func(Signal)) (cancel func())
}

// PassFunc runs one full reconciliation pass. signals is the union of
// everything seen since the previous pass.
type PassFunc func(ctx context.Context, signals Signal) error

// DefaultQuiet is the coalescing window.
const DefaultQuiet = 600 * time.Millisecond

type Options struct {
	// Quiet is how long signals must stop before the trailing pass runs.
	Quiet time.Duration
	// MinInterval is the minimum gap between two coalesced passes. Zero
	// disables the limit.
	MinInterval time.Duration
	Clock       Clock
}

// Scheduler coalesces bursts of signals into single passes and never
// runs two passes at once. A pass requested while one is in flight is
// folded into a single re-run after it.
type Scheduler struct {
	ctx     context.Context
	run     PassFunc
	quiet   time.Duration
	clock   Clock
	limiter *rate.Limiter

	mu      sync.Mutex
	timer   Timer
	pending Signal
	running bool
	rerun   bool
	closed  bool
	passes  int
	lastErr error
}

func New(ctx context.Context, run PassFunc, opts Options) *Scheduler {
	if opts.Quiet <= 0 {
		opts.Quiet = DefaultQuiet
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	s := &Scheduler{
		ctx:   ctx,
		run:   run,
		quiet: opts.Quiet,
		clock: opts.Clock,
	}
	if opts.MinInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	return s
}

// Attach subscribes the scheduler to src.
func (s *Scheduler) Attach(src Source) (cancel func()) {
	return src.Subscribe(s.Notify)
}

// Notify records a signal and (re)arms the trailing timer. A settings
// signal additionally runs a pass right away unless one is in flight.
func (s *Scheduler) Notify(sig Signal) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending |= sig
	s.armLocked(s.quiet)
	leading := sig&SignalSettings != 0 && !s.running
	s.mu.Unlock()

	if leading {
		s.execute(false)
	}
}

// Trigger runs a pass now, subject only to the no-overlap rule.
func (s *Scheduler) Trigger() {
	s.execute(false)
}

// Passes reports how many passes have completed.
func (s *Scheduler) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// LastError is the error of the most recent pass, if any.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close stops the pending timer; later signals are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) armLocked(d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(d, s.fire)
}

// fire is the trailing timer callback.
func (s *Scheduler) fire() {
	s.execute(true)
}

func (s *Scheduler) execute(trailing bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	if trailing {
		s.timer = nil
		if s.limiter != nil {
			now := s.clock.Now()
			r := s.limiter.ReserveN(now, 1)
			if d := r.DelayFrom(now); d > 0 {
				r.CancelAt(now)
				s.armLocked(d)
				s.mu.Unlock()
				return
			}
		}
	}
	s.running = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		signals := s.pending
		s.pending = 0
		s.mu.Unlock()

		err := s.safeRun(signals)

		s.mu.Lock()
		s.passes++
		s.lastErr = err
		if !s.rerun || s.closed {
			s.running = false
			s.rerun = false
			s.mu.Unlock()
			return
		}
		s.rerun = false
		s.mu.Unlock()
	}
}

// safeRun keeps a failing pass from taking the scheduler down with it.
func (s *Scheduler) safeRun(signals Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("schedule: pass panicked: %v", r)
		}
		if err != nil {
			appLog.Error("reconciliation pass failed", err, "signals", signals.String())
		}
	}()
	return s.run(s.ctx, signals)
}
