package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/store"
)

var (
	auditPageSize int
	auditSamples  int
	auditJSON     bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report data-quality issues without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "audit", false)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := auditStore(ctx, env.Store, env.Markers, auditPageSize, auditSamples)
		if err != nil {
			return eris.Wrap(err, "audit")
		}
		if auditJSON {
			return printJSON(cmd.OutOrStdout(), report)
		}
		formatAuditReport(cmd.OutOrStdout(), report)
		return nil
	},
}

// auditReport counts issues over a full table scan.
type auditReport struct {
	Scanned int                        `json:"scanned"`
	Clean   int                        `json:"clean"`
	Issues  map[company.Issue]int      `json:"issues"`
	Samples map[company.Issue][]string `json:"samples,omitempty"`
}

// auditStore pages through st and validates every record, keeping up to
// samples record names per issue.
func auditStore(ctx context.Context, st store.Store, m company.Markers, pageSize, samples int) (*auditReport, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	report := &auditReport{
		Issues:  make(map[company.Issue]int),
		Samples: make(map[company.Issue][]string),
	}

	for offset := 0; ; offset += pageSize {
		page, err := st.List(ctx, store.ListQuery{Limit: pageSize, Offset: offset})
		if err != nil {
			return report, eris.Wrapf(err, "list at offset %d", offset)
		}
		for _, r := range page {
			report.Scanned++
			issues := company.Validate(r, m)
			if len(issues) == 0 {
				report.Clean++
				continue
			}
			for _, is := range issues {
				report.Issues[is]++
				if len(report.Samples[is]) < samples {
					report.Samples[is] = append(report.Samples[is], r.Name)
				}
			}
		}
		if len(page) < pageSize {
			break
		}
	}
	return report, nil
}

// formatAuditReport writes a tabular issue summary to out.
func formatAuditReport(out io.Writer, r *auditReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Scanned:\t%d\n", r.Scanned)
	_, _ = fmt.Fprintf(w, "Clean:\t%d\n", r.Clean)
	if len(r.Issues) == 0 {
		_ = w.Flush()
		return
	}

	issues := make([]company.Issue, 0, len(r.Issues))
	for is := range r.Issues {
		issues = append(issues, is)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i] < issues[j] })

	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "ISSUE\tCOUNT\tEXAMPLES")
	_, _ = fmt.Fprintln(w, "-----\t-----\t--------")
	for _, is := range issues {
		examples := ""
		for i, name := range r.Samples[is] {
			if i > 0 {
				examples += ", "
			}
			examples += name
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", is, r.Issues[is], examples)
	}
	_ = w.Flush()
}

func init() {
	auditCmd.Flags().IntVar(&auditPageSize, "page-size", 1000, "records read per page")
	auditCmd.Flags().IntVar(&auditSamples, "samples", 3, "example names shown per issue")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(auditCmd)
}
