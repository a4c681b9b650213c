package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/reconcile"
)

var slugsPageSize int

var slugsCmd = &cobra.Command{
	Use:   "slugs",
	Short: "Backfill missing or stale slugs across the whole directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "slugs", false)
		if err != nil {
			return err
		}
		defer env.Close()

		writer := newWriter(env.Store, cfg.Reconcile.BatchSize, cfg.Reconcile.BatchPause)
		sum, err := reconcile.BackfillSlugs(ctx, env.Store, writer, slugsPageSize)
		if err != nil {
			return eris.Wrap(err, "slugs")
		}

		zap.L().Info("slug backfill complete",
			zap.Int("scanned", sum.Scanned),
			zap.Int("stale", sum.Stale),
			zap.Int("written", sum.Upserts.Written),
		)
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

func init() {
	slugsCmd.Flags().IntVar(&slugsPageSize, "page-size", 1000, "records read per page")
	rootCmd.AddCommand(slugsCmd)
}
