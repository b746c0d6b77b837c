package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"relcal/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the label settings",
	Long: `settings reads and writes the two flags in settings_path:

  enableExtension           show labels at all
  showYearsForLongPeriods   render offsets of a year or more as "1y45d"

A running "relcal watch" picks changes up immediately.`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load(cmd.Context(), settingsStore())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s=%t\n", settings.KeyEnabled, s.Enabled)
		fmt.Fprintf(out, "%s=%t\n", settings.KeyShowYears, s.ShowYears)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change one or more settings",
	Example: `  relcal settings set enableExtension=false
  relcal settings set showYearsForLongPeriods=true`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseAssignments(args)
		if err != nil {
			return err
		}
		return settingsStore().Set(cmd.Context(), values)
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

// parseAssignments turns ["k=v", ...] into a settings update.
func parseAssignments(args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		key = strings.TrimSpace(key)
		known := false
		for _, k := range settings.Keys {
			if strings.EqualFold(k, key) {
				key, known = k, true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown setting %q (want one of %s)", key, strings.Join(settings.Keys, ", "))
		}
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		values[key] = b
	}
	return values, nil
}
