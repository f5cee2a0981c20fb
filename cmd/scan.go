package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"livecat/internal/catalog"
	"livecat/internal/logging"
	"livecat/internal/prefs"
	"livecat/internal/scan"
	"livecat/internal/store"
	"livecat/internal/workers"
)

var (
	scanScopes []string
	scanRehash bool
	scanResume bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Walk scope roots and stage everything that changed",
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

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Scan workers interleave disk reads with hashing and XML
		// parsing, so size the pool for a mixed workload.
		workerCount := cfg.Workers
		if workerCount < 1 {
			workerCount = workers.ForMixed(0)
		}

		for _, raw := range scanScopes {
			scope, err := catalog.ParseScope(raw)
			if err != nil {
				return err
			}
			root, err := cfg.Root(scope)
			if err != nil {
				return err
			}

			sc, err := scan.New(st, scan.Options{
				Scope:          scope,
				Root:           root,
				CatalogDir:     cfg.CatalogDir,
				Workers:        workerCount,
				Hash:           cfg.Hash,
				Rehash:         scanRehash,
				Resume:         scanResume,
				IncludeMedia:   cfg.IncludeMedia,
				IncludeBackups: cfg.IncludeBackups,
				FastDirs:       cfg.FastDirs,
				OnProgress: func(p scan.Progress) {
					logging.Info("Scanning %s: %d scanned, %d indexed, %d skipped",
						p.Scope, p.Scanned, p.Indexed, p.Skipped)
				},
			})
			if err != nil {
				return err
			}

			sum, err := sc.Run(ctx)
			if err != nil {
				// A failed scope does not stop the multi-scope run.
				logging.Error("Scan of %s failed: %v", scope, err)
				continue
			}

			fmt.Printf("%s: scanned %d, indexed %d, skipped %d", scope, sum.Scanned, sum.Indexed, sum.Skipped)
			for decision, n := range sum.Decisions {
				fmt.Printf(", %s %d", decision, n)
			}
			fmt.Println()
			if sum.Cancelled {
				fmt.Println("interrupted; rerun with --resume to continue")
				break
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSliceVar(&scanScopes, "scope", []string{"recordings"}, "scopes to scan")
	scanCmd.Flags().String("hash", "off", "hash mode: off, changed-only or full")
	scanCmd.Flags().Bool("include-media", false, "index media files too")
	scanCmd.Flags().Bool("include-backups", false, "include backup dirs and timestamped copies")
	scanCmd.Flags().Bool("fast-dirs", false, "skip subtrees whose directory mtimes are unchanged")
	scanCmd.Flags().Int("workers", 0, "worker count (0 = sized from CPU count)")
	scanCmd.Flags().BoolVar(&scanRehash, "rehash", false, "force a full rehash of every file")
	scanCmd.Flags().BoolVar(&scanResume, "resume", false, "resume from the last incomplete checkpoint")

	viper.BindPFlag("hash", scanCmd.Flags().Lookup("hash"))
	viper.BindPFlag("include_media", scanCmd.Flags().Lookup("include-media"))
	viper.BindPFlag("include_backups", scanCmd.Flags().Lookup("include-backups"))
	viper.BindPFlag("fast_dirs", scanCmd.Flags().Lookup("fast-dirs"))
	viper.BindPFlag("workers", scanCmd.Flags().Lookup("workers"))
}
