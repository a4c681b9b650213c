package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/ingest"
	"github.com/sells-group/directory-cli/internal/resilience"
)

var (
	importBatchSize   int
	importConcurrency int
	importDryRun      bool
)

var importCmd = &cobra.Command{
	Use:   "import <source>...",
	Short: "Import company listings into the directory",
	Long: "Reads CSV, TSV, XLSX or JSON listings from local paths, http(s) or ftp URLs\n" +
		"(optionally zipped), deduplicates them and upserts the result keyed by website.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import", false)
		if err != nil {
			return err
		}
		defer env.Close()

		sources, err := openSources(ctx, newOpener(), args)
		if err != nil {
			return err
		}

		batchSize := cfg.Ingest.BatchSize
		if importBatchSize > 0 {
			batchSize = importBatchSize
		}
		concurrency := cfg.Ingest.Concurrency
		if importConcurrency > 0 {
			concurrency = importConcurrency
		}

		if importDryRun {
			candidates, counts, err := ingest.Load(ctx, sources, concurrency)
			if err != nil {
				return eris.Wrap(err, "import dry run")
			}
			sum := &ingest.Summary{Sources: counts, Candidates: len(candidates)}
			sum.Records = len(ingest.Prepare(candidates, sum))
			return printJSON(cmd.OutOrStdout(), sum)
		}

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		importer := ingest.NewImporter(env.Store, newWriter(env.Store, batchSize, cfg.Ingest.BatchPause), concurrency)
		sum, err := importer.Import(ctx, sources)
		if sum != nil {
			zap.L().Info("import complete",
				zap.Int("candidates", sum.Candidates),
				zap.Int("records", sum.Records),
				zap.Int("written", sum.Upserts.Written),
				zap.Int("failed", sum.Upserts.Failed),
			)
		}
		if err != nil {
			return eris.Wrap(err, "import")
		}
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

func newOpener() *ingest.Opener {
	timeout := seconds(cfg.Ingest.DownloadTimeoutSecs)
	limiter := resilience.NewHostLimiter(cfg.Lookup.RequestsPerSecond, cfg.Lookup.Burst)
	return &ingest.Opener{
		HTTP: ingest.NewHTTPDownloader(timeout, limiter),
		FTP:  ingest.NewFTPDownloader(timeout),
		Dir:  cfg.Ingest.DownloadDir,
	}
}

func openSources(ctx context.Context, o *ingest.Opener, refs []string) ([]ingest.Source, error) {
	sources := make([]ingest.Source, 0, len(refs))
	for _, ref := range refs {
		src, err := o.Open(ctx, ref)
		if err != nil {
			return nil, eris.Wrapf(err, "open source %s", ref)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func init() {
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 0, "records per upsert batch (default from config)")
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 0, "sources read in parallel (default from config)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "load and deduplicate without writing")
	rootCmd.AddCommand(importCmd)
}
