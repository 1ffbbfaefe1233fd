package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migratePruneCache bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))

		if migratePruneCache {
			n, err := st.DeleteExpiredSearches(ctx)
			if err != nil {
				return eris.Wrap(err, "prune search cache")
			}
			fmt.Fprintf(os.Stderr, "Pruned %d expired search cache entries.\n", n)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migratePruneCache, "prune-cache", false, "also delete expired search cache entries")
	rootCmd.AddCommand(migrateCmd)
}
