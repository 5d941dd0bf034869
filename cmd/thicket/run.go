package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoniostano/thicket/internal/turn"
)

func newRunCmd() *cobra.Command {
	var (
		turns   int
		endless bool
		delay   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute turns from the terminal and print the run report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !endless && turns < 1 {
				return fmt.Errorf("--turns must be >= 1, got %d", turns)
			}
			if delay < 0 {
				return fmt.Errorf("--delay must be >= 0")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := wireApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("delay") {
				delay = a.cfg.DefaultTurnDelay
			}
			report := a.turns.Run(ctx, turn.RunRequest{Repeat: &turns, Endless: endless, Delay: delay})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Err != nil && report.TurnsExecuted == 0 {
				return report.Err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&turns, "turns", 1, "number of turns to execute")
	cmd.Flags().BoolVar(&endless, "endless", false, "run until interrupted or a turn fails")
	cmd.Flags().DurationVar(&delay, "delay", time.Second, "pause between turns")
	return cmd
}
