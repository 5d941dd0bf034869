package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the initial world state loaded from the roster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"npcs":      a.store.Snapshot().Actors,
				"locations": a.store.Locations(),
			})
		},
	}
}
