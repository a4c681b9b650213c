package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/reconcile"
)

var (
	reconcileMaxCycles int
	reconcileFields    []string
	reconcileJSON      bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Resolve placeholder fields until the directory is clean",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fields, err := parseFields(reconcileFields)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "reconcile", true)
		if err != nil {
			return err
		}
		defer env.Close()

		rc := reconcileConfig(cfg.Reconcile, fields)
		if cmd.Flags().Changed("max-cycles") {
			rc.MaxCycles = reconcileMaxCycles
		}

		sum, err := newReconciler(env, rc).Run(ctx)
		if sum != nil {
			if reconcileJSON {
				if perr := printJSON(cmd.OutOrStdout(), sum); perr != nil {
					return perr
				}
			} else {
				formatReconcileSummary(cmd.OutOrStdout(), sum)
			}
		}
		if err != nil && !eris.Is(err, context.Canceled) {
			return eris.Wrap(err, "reconcile")
		}
		return nil
	},
}

func newReconciler(env *directoryEnv, rc reconcile.Config) *reconcile.Reconciler {
	writer := newWriter(env.Store, cfg.Reconcile.BatchSize, cfg.Reconcile.BatchPause)
	return reconcile.New(env.Store, env.Detector, buildResolvers(env.Cache), writer, rc, nil)
}

// parseFields maps field names to a FieldSet. No names selects every field.
func parseFields(names []string) (company.FieldSet, error) {
	var set company.FieldSet
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		found := false
		for _, f := range company.Fields {
			if name == f.String() || (f == company.FieldLogo && name == "logo") {
				set = set.Add(f)
				found = true
				break
			}
		}
		if !found {
			return 0, eris.Errorf("unknown field %q (want website, logo_url, description or slug)", raw)
		}
	}
	return set, nil
}

// formatReconcileSummary writes a run summary to out.
func formatReconcileSummary(out io.Writer, s *reconcile.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Cycles:\t%d\n", s.Cycles)
	_, _ = fmt.Fprintf(w, "Candidates:\t%d\n", s.Candidates)
	_, _ = fmt.Fprintf(w, "Fixed:\t%d\n", s.Fixed)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	if s.Fallbacks > 0 {
		_, _ = fmt.Fprintf(w, "Fallback scans:\t%d\n", s.Fallbacks)
	}
	for _, k := range sortedKeys(s.Fields) {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", k, s.Fields[k])
	}
	for _, k := range sortedKeys(s.Strategies) {
		_, _ = fmt.Fprintf(w, "  via %s:\t%d\n", k, s.Strategies[k])
	}
	switch {
	case s.Stalled:
		_, _ = fmt.Fprintf(w, "Stopped:\tno progress\n")
	case s.Capped:
		_, _ = fmt.Fprintf(w, "Stopped:\tcycle cap\n")
	}
	if len(s.Quarantined) > 0 {
		_, _ = fmt.Fprintf(w, "Quarantined:\t%d\n", len(s.Quarantined))
	}
	if !s.FinishedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "Duration:\t%s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	}
	_ = w.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileMaxCycles, "max-cycles", 0, "stop after this many cycles (0 = unlimited, default from config)")
	reconcileCmd.Flags().StringSliceVar(&reconcileFields, "fields", nil, "fields to resolve: website, logo_url, description, slug (default all)")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(reconcileCmd)
}
