// Package browser drives a live calendar page through Chromium.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"relcal/internal/dom"
	appLog "relcal/internal/log"
	"relcal/internal/schedule"
)

// Defaults for opening the calendar.
const (
	DefaultURL         = "https://calendar.google.com/calendar/r"
	DefaultReady       = `[role="grid"], [role="row"]`
	DefaultTimeoutSec  = 120
	defaultEvalTimeout = 10 * time.Second
)

type Options struct {
	// URL of the calendar page.
	URL string
	// Ready is a selector that becomes visible once the calendar rendered.
	Ready string
	// Headless runs Chromium without a window. A signed-in session
	// usually needs a visible window and a persistent UserDataDir.
	Headless    bool
	UserDataDir string
	ExecPath    string

	Selectors dom.Selectors
	Anchor    dom.Anchor

	// Timeout bounds navigation until Ready is visible.
	Timeout time.Duration
}

// Page is an open calendar tab. It implements engine.Target and
// schedule.Source.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    pageConfig

	mu     sync.Mutex
	nextID int
	subs   map[int]func(schedule.Signal)
}

// Open launches Chromium, installs the change observers, navigates to
// opts.URL and waits until the calendar grid is visible.
func Open(parentCtx context.Context, opts Options) (*Page, error) {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Ready == "" {
		opts.Ready = DefaultReady
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)

	p := &Page{
		ctx: ctx,
		cancel: func() {
			ctxCancel()
			allocCancel()
		},
		cfg:  newPageConfig(opts.Selectors, opts.Anchor),
		subs: make(map[int]func(schedule.Signal)),
	}

	// The first Run allocates the browser; it must not carry a timeout or
	// the browser dies with it.
	if err := chromedp.Run(ctx); err != nil {
		p.cancel()
		return nil, fmt.Errorf("browser: start chromium: %w", err)
	}
	chromedp.ListenTarget(ctx, p.onEvent)

	navCtx, navCancel := context.WithTimeout(ctx, opts.Timeout)
	defer navCancel()

	tasks := chromedp.Tasks{
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(observerJS).Do(ctx)
			return err
		}),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(opts.Ready, chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, tasks); err != nil {
		p.cancel()
		return nil, fmt.Errorf("browser: open %s: %w", opts.URL, err)
	}

	appLog.Info("calendar page ready", "url", opts.URL, "headless", opts.Headless)
	return p, nil
}

// Close shuts the browser down.
func (p *Page) Close() {
	p.cancel()
}

// Done is closed when the browser goes away.
func (p *Page) Done() <-chan struct{} {
	return p.ctx.Done()
}

func (p *Page) Snapshot(ctx context.Context) (dom.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	script, err := snapshotScript(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("browser: snapshot script: %w", err)
	}

	var snap snapshot
	if err := p.eval(script, &snap); err != nil {
		return nil, fmt.Errorf("browser: snapshot: %v: %w", err, dom.ErrTargetMissing)
	}
	return newDocument(snap), nil
}

func (p *Page) Commit(ctx context.Context, d dom.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, ok := d.(*Document)
	if !ok {
		return errors.New("browser: commit: foreign document")
	}
	if !doc.Pending() {
		return nil
	}
	script, err := applyScript(p.cfg, doc)
	if err != nil {
		return fmt.Errorf("browser: apply script: %w", err)
	}

	var applied int
	if err := p.eval(script, &applied); err != nil {
		return fmt.Errorf("browser: apply: %w", err)
	}
	if want := len(doc.ops); applied < want && !doc.removeAll {
		appLog.Debug("some marker writes were dropped", "applied", applied, "recorded", want)
	}
	return nil
}

func (p *Page) eval(script string, res any) error {
	ctx, cancel := context.WithTimeout(p.ctx, defaultEvalTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Evaluate(script, res))
}

// Subscribe implements schedule.Source.
func (p *Page) Subscribe(fn func(schedule.Signal)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// onEvent runs on chromedp's event goroutine and must not block.
func (p *Page) onEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != bindingName {
			return
		}
		switch e.Payload {
		case "mutation":
			p.emit(schedule.SignalMutation)
		case "visible":
			p.emit(schedule.SignalVisible)
		}
	case *page.EventNavigatedWithinDocument:
		appLog.Debug("calendar navigated", "url", e.URL)
		p.emit(schedule.SignalNavigation)
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			appLog.Debug("calendar reloaded", "url", e.Frame.URL)
			p.emit(schedule.SignalNavigation)
		}
	}
}

func (p *Page) emit(sig schedule.Signal) {
	p.mu.Lock()
	fns := make([]func(schedule.Signal), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}
