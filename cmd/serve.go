package cmd

import (
	"github.com/spf13/cobra"

	"livecat/internal/prefs"
	"livecat/internal/query"
	"livecat/internal/server"
	"livecat/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only catalog API",
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

		srv := server.New(query.New(st), cfg.CatalogDir)
		return srv.ListenAndServe(serveAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}
