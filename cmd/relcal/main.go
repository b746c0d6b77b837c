package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"relcal/internal/config"
	appLog "relcal/internal/log"
	"relcal/internal/settings"
)

const version = "0.1.0"

var (
	configPath string
	debug      bool

	// conf is loaded once by the root PersistentPreRunE.
	conf *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "relcal",
	Short: "Prefix calendar events with how far away they are",
	Long: `relcal annotates every visible event of a web calendar with a compact
relative-time prefix such as "2d", "3h", "1y45d" or "-5d".

It can drive a live calendar tab through Chromium (watch), annotate a
saved calendar page (annotate), print an ICS agenda with the same labels
(agenda), and serve a small settings page (serve).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		conf = c

		level := appLog.ParseLevel(conf.LogLevel)
		if debug {
			level = appLog.LevelDebug
		}
		appLog.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error("relcal failed", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func settingsStore() *settings.FileStore {
	return settings.NewFileStore(conf.SettingsPath)
}
