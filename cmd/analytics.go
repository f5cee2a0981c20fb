package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"livecat/internal/analytics"
	"livecat/internal/catalog"
	"livecat/internal/prefs"
	"livecat/internal/store"
)

var analyticsScopes []string

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Recompute derived metrics from the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := prefs.Load()
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		opts := analytics.Options{
			Weights:     cfg.Health,
			WindowsDays: cfg.WindowsDays,
			ChainLength: cfg.ChainLength,
		}
		for _, raw := range analyticsScopes {
			scope, err := catalog.ParseScope(raw)
			if err != nil {
				return err
			}
			if err := analytics.Refresh(st, scope, opts); err != nil {
				return err
			}
			fmt.Printf("%s: derived metrics refreshed\n", scope)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
	analyticsCmd.Flags().StringSliceVar(&analyticsScopes, "scope", []string{"recordings"}, "scopes to refresh")
}
