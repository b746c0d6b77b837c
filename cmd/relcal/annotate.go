package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"relcal/internal/dom"
	"relcal/internal/engine"
	"relcal/internal/htmldoc"
	appLog "relcal/internal/log"
	"relcal/internal/schedule"
	"relcal/internal/settings"
)

var (
	annotateOut string
	annotateNow string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate FILE",
	Short: "Label the events of a saved calendar page",
	Long: `annotate reads a saved calendar HTML page ("-" for stdin), runs one
reconciliation pass with the current settings and writes the result.

Examples:
  relcal annotate week.html -o week.labelled.html
  relcal annotate --now 2024-07-10T09:00:00Z week.html`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnnotate(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

func init() {
	annotateCmd.Flags().StringVarP(&annotateOut, "output", "o", "", "write to this file instead of stdout")
	annotateCmd.Flags().StringVar(&annotateNow, "now", "", "evaluate labels at this RFC 3339 instant")
	rootCmd.AddCommand(annotateCmd)
}

func runAnnotate(ctx context.Context, path string, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	doc, err := htmldoc.Parse(in, conf.Selectors, dom.ParseAnchor(conf.Anchor))
	if err != nil {
		return fmt.Errorf("annotate: %w", err)
	}

	opts := engine.Options{Location: conf.Location()}
	if annotateNow != "" {
		at, err := time.Parse(time.RFC3339, annotateNow)
		if err != nil {
			return fmt.Errorf("annotate: --now: %w", err)
		}
		opts.Now = func() time.Time { return at }
	}

	eng := engine.New(doc, settings.NewCache(settingsStore()), opts)
	if err := eng.Pass(ctx, schedule.SignalTick); err != nil {
		return err
	}
	res := eng.Last()
	appLog.Info("annotated",
		"file", path,
		"events", res.Stats.Events,
		"inserted", res.Stats.Inserted,
		"updated", res.Stats.Updated,
		"removed", res.Stats.Removed,
		"skipped", res.Stats.Skipped,
	)

	out := stdout
	if annotateOut != "" {
		f, err := os.Create(annotateOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return doc.Render(out)
}
