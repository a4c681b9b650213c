package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-cli/internal/company"
)

// CSVSource streams candidates from a headed CSV file. Files ending in
// .tsv are read tab-delimited.
type CSVSource struct {
	path string
}

// NewCSVSource creates a CSVSource for path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Name returns the file name.
func (s *CSVSource) Name() string { return filepath.Base(s.path) }

// Records streams the file row by row.
func (s *CSVSource) Records(ctx context.Context) iter.Seq2[company.Candidate, error] {
	return func(yield func(company.Candidate, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(company.Candidate{}, eris.Wrapf(err, "ingest: open %s", s.path))
			return
		}
		defer f.Close() //nolint:errcheck

		delim := ','
		if strings.EqualFold(filepath.Ext(s.path), ".tsv") {
			delim = '\t'
		}
		for c, err := range readCSV(ctx, f, delim, s.Name()) {
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}

// readCSV maps each row after the header to a candidate.
func readCSV(ctx context.Context, r io.Reader, delim rune, source string) iter.Seq2[company.Candidate, error] {
	return func(yield func(company.Candidate, error) bool) {
		reader := csv.NewReader(r)
		reader.Comma = delim
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		header, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(company.Candidate{}, eris.Wrap(err, "ingest: read csv header"))
			return
		}
		cols, err := mapHeader(header)
		if err != nil {
			yield(company.Candidate{}, err)
			return
		}

		for {
			if ctx.Err() != nil {
				yield(company.Candidate{}, eris.Wrap(ctx.Err(), "ingest: csv cancelled"))
				return
			}
			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(company.Candidate{}, eris.Wrap(err, "ingest: read csv row"))
				return
			}
			if !yield(cols.candidate(row, source), nil) {
				return
			}
		}
	}
}
