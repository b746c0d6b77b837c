package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"relcal/internal/agenda"
	"relcal/internal/ics"
	appLog "relcal/internal/log"
	"relcal/internal/settings"
)

var (
	agendaDays     int
	agendaBackfill int
	agendaPlain    bool
)

var agendaCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Print upcoming ICS events with relative labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		items, err := buildAgenda(ctx)
		if err != nil {
			return err
		}
		styles := agenda.DefaultStyles()
		if agendaPlain {
			styles = agenda.PlainStyles()
		}
		return agenda.Render(cmd.OutOrStdout(), items, styles)
	},
}

func init() {
	agendaCmd.Flags().IntVar(&agendaDays, "days", 0, "days ahead (default horizon_days)")
	agendaCmd.Flags().IntVar(&agendaBackfill, "backfill", -1, "days back (default backfill_days)")
	agendaCmd.Flags().BoolVar(&agendaPlain, "plain", false, "no colors")
	rootCmd.AddCommand(agendaCmd)
}

// buildAgenda fetches, expands and labels the configured ICS feeds.
func buildAgenda(ctx context.Context) ([]agenda.Item, error) {
	feeds := make([]ics.Feed, 0, len(conf.ICS))
	for _, src := range conf.ICS {
		if src.URL == "" {
			continue
		}
		id := src.ID
		if id == "" {
			id = src.Name
		}
		if id == "" {
			id = src.URL
		}
		feeds = append(feeds, ics.Feed{ID: id, URL: src.URL})
	}

	if len(feeds) == 0 {
		return nil, errors.New("agenda: no ics sources configured")
	}

	days, backfill := conf.HorizonDays, conf.BackfillDays
	if agendaDays > 0 {
		days = agendaDays
	}
	if agendaBackfill >= 0 {
		backfill = agendaBackfill
	}

	loc := conf.Location()
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	entries, errs := ics.NewFetcher(conf.ICSCacheDir, nil).Load(ctx, feeds, loc)
	if len(errs) == len(feeds) {
		return nil, fmt.Errorf("agenda: every feed failed: %w", errors.Join(errs...))
	}

	occs, err := ics.Expand(entries, ics.Window{
		Start:    today.AddDate(0, 0, -backfill),
		End:      today.AddDate(0, 0, days),
		Location: loc,
	})
	if err != nil {
		return nil, err
	}

	s := settings.NewCache(settingsStore()).Refresh(ctx)
	appLog.Debug("agenda built", "feeds", len(feeds), "occurrences", len(occs), "show_years", s.ShowYears)
	return agenda.Build(occs, now, s.ShowYears), nil
}
