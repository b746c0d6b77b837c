package main

import (
	"github.com/spf13/cobra"

	appLog "relcal/internal/log"
	"relcal/internal/message"
	"relcal/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the settings page and agenda API without a browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		if conf.Listen == "" {
			conf.Listen = "127.0.0.1:8719"
		}

		bus := message.NewBus(16)
		defer bus.Subscribe(func(m message.Message) {
			appLog.Info("settings updated", "action", m.Action)
		})()
		go bus.Run(ctx)

		var deps web.Deps
		deps.Store = settingsStore()
		deps.Bus = bus
		if len(conf.ICS) > 0 {
			deps.Agenda = buildAgenda
		}
		return web.NewServer(conf, deps).Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
