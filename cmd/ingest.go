package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"livecat/internal/catalog"
	"livecat/internal/ingest"
	"livecat/internal/prefs"
	"livecat/internal/store"
)

var ingestScopes []string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Merge staged streams into the SQLite catalog",
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

		for _, raw := range ingestScopes {
			scope, err := catalog.ParseScope(raw)
			if err != nil {
				return err
			}
			res, err := ingest.Run(st, cfg.CatalogDir, scope)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d rows merged, %d malformed\n", scope, res.Rows(), res.Malformed())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringSliceVar(&ingestScopes, "scope", []string{"recordings"}, "scopes to ingest")
}
