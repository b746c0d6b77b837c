package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"relcal/internal/browser"
	"relcal/internal/dom"
	"relcal/internal/engine"
	appLog "relcal/internal/log"
	"relcal/internal/message"
	"relcal/internal/schedule"
	"relcal/internal/settings"
	"relcal/internal/web"
)

var watchURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the calendar in Chromium and keep its labels current",
	Long: `watch opens the configured calendar URL in Chromium and re-labels events
whenever the page changes, the tab becomes visible, the view navigates,
the settings change, or the refresh schedule fires.

Sign in once with chrome.headless set to false; the session is kept in
chrome.user_data_dir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return runWatch(ctx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "calendar URL (overrides calendar_url)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context) error {
	url := conf.CalendarURL
	if watchURL != "" {
		url = watchURL
	}

	appLog.Info("relcal watch starting",
		"version", version,
		"url", url,
		"timezone", conf.Location().String(),
		"settings", conf.SettingsPath,
		"debounce", conf.Debounce(),
		"refresh", conf.RefreshCron,
		"anchor", conf.Anchor,
	)

	page, err := browser.Open(ctx, browser.Options{
		URL:         url,
		Headless:    conf.Chrome.Headless,
		UserDataDir: conf.Chrome.UserDataDir,
		ExecPath:    conf.Chrome.ExecPath,
		Selectors:   conf.Selectors,
		Anchor:      dom.ParseAnchor(conf.Anchor),
		Timeout:     time.Duration(conf.Chrome.TimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}
	defer page.Close()

	store := settingsStore()
	eng := engine.New(page, settings.NewCache(store), engine.Options{Location: conf.Location()})

	sched := schedule.New(ctx, eng.Pass, schedule.Options{
		Quiet:       conf.Debounce(),
		MinInterval: conf.MinPassInterval(),
	})
	defer sched.Close()
	defer sched.Attach(page)()

	ticker, err := schedule.NewTicker(conf.RefreshCron)
	if err != nil {
		return err
	}
	defer sched.Attach(ticker)()
	ticker.Start()
	defer ticker.Stop()

	bus := message.NewBus(16)
	defer bus.Subscribe(func(m message.Message) {
		sched.Notify(schedule.SignalSettings)
	})()
	go bus.Run(ctx)

	watcher := settings.NewWatcher(store.Path())
	defer watcher.Subscribe(func() { sched.Notify(schedule.SignalSettings) })()
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			appLog.Error("settings watcher stopped", err, "path", store.Path())
		}
	}()

	if conf.Listen != "" {
		srv := web.NewServer(conf, web.Deps{
			Store:  store,
			Bus:    bus,
			Status: eng.Last,
			Agenda: buildAgenda,
		})
		go func() {
			if err := srv.Serve(ctx); err != nil {
				appLog.Error("HTTP server stopped", err, "listen", conf.Listen)
			}
		}()
	}

	sched.Trigger()

	select {
	case <-ctx.Done():
	case <-page.Done():
		appLog.Warn("browser closed")
	}
	appLog.Info("relcal watch exiting", "passes", sched.Passes())
	return nil
}
