package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thatsimonsguy/appliance-controller/db"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

const (
	flagDB    = "db"
	flagJSON  = "json"
	flagLimit = "limit"
	flagMode  = "mode"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("APPLIANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:          "appliance-debug",
		Short:        "Inspect and reset the appliance controller state database",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String(flagDB, "data/appliance.db", "Path to the SQLite database file (env APPLIANCE_DB)")
	_ = v.BindPFlag(flagDB, rootCmd.PersistentFlags().Lookup(flagDB))

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Show the persisted washer and thermostat state",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := db.ReadStateCLI(v.GetString(flagDB))
			if err != nil {
				return err
			}
			if v.GetBool(flagJSON) {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "washer:     mode=%s stage=%s rinse=%d elapsed=%dm\n",
				summary.Wash.Mode, summary.Wash.Stage, summary.Wash.RinseCount, summary.Wash.ElapsedMinutes)
			if summary.Wash.CycleID != "" {
				fmt.Fprintf(w, "cycle:      %s\n", summary.Wash.CycleID)
			}
			fmt.Fprintf(w, "thermostat: recent_dwell=%t\n", summary.HasRecentDwell)
			return nil
		},
	}
	stateCmd.Flags().Bool(flagJSON, false, "Print as JSON")
	_ = v.BindPFlag(flagJSON, stateCmd.Flags().Lookup(flagJSON))

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent wash cycles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt(flagLimit)
			cycles, err := db.ListCyclesCLI(v.GetString(flagDB), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(cycles) == 0 {
				fmt.Fprintln(w, "No wash cycles recorded")
				return nil
			}
			for _, c := range cycles {
				outcome := c.Outcome
				if outcome == "" {
					outcome = "running"
				}
				fmt.Fprintf(w, "%s  %-8s  %s  %s\n", c.StartedAt.Format("2006-01-02 15:04"), c.Mode, outcome, c.ID)
			}
			return nil
		},
	}
	historyCmd.Flags().Int(flagLimit, 20, "Number of cycles to show")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the washer to Off and forget the thermostat dwell",
		Long: `reset clears the persisted wash stage so the next start does not report a
power loss, closes any open cycle as stopped and clears the thermostat's recent
dwell flag. Run it only while the controller is stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString(flagMode)
			mode, err := model.ParseWashMode(name)
			if err != nil {
				return err
			}
			if err := db.ResetStateCLI(v.GetString(flagDB), mode); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "State reset")
			return nil
		},
	}
	resetCmd.Flags().String(flagMode, model.WashNormal.String(), "Wash mode to leave selected")

	rootCmd.AddCommand(stateCmd, historyCmd, resetCmd)
	return rootCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
