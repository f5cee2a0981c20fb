package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"livecat/internal/catalog"
	"livecat/internal/prefs"
	"livecat/internal/scan"
	"livecat/internal/store"
)

var (
	maintainVacuum bool
	maintainPrune  bool
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run catalog maintenance: stats refresh, pruning, vacuum",
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

		if maintainPrune {
			for _, scope := range catalog.Scopes {
				if cfg.Roots[scope] == "" {
					continue
				}
				root, err := cfg.Root(scope)
				if err != nil {
					return err
				}
				removed, err := scan.Prune(st, scope, root)
				if err != nil {
					return err
				}
				fmt.Printf("%s: pruned %d vanished paths\n", scope, removed)
			}
		}

		if err := st.Maintain(maintainVacuum); err != nil {
			return err
		}
		fmt.Println("maintenance complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(maintainCmd)
	maintainCmd.Flags().BoolVar(&maintainVacuum, "vacuum", false, "reclaim free pages with VACUUM")
	maintainCmd.Flags().BoolVar(&maintainPrune, "prune", false, "drop index rows for files no longer on disk")
}
