package ingest

import (
	"context"
	"iter"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/directory-cli/internal/company"
)

// XLSXSource reads candidates from one sheet of a workbook. The first row
// is the header.
type XLSXSource struct {
	path  string
	sheet string
}

// NewXLSXSource creates an XLSXSource. An empty sheet name reads the first
// sheet.
func NewXLSXSource(path, sheet string) *XLSXSource {
	return &XLSXSource{path: path, sheet: sheet}
}

// Name returns the file name.
func (s *XLSXSource) Name() string { return filepath.Base(s.path) }

// Records reads the sheet.
func (s *XLSXSource) Records(ctx context.Context) iter.Seq2[company.Candidate, error] {
	return func(yield func(company.Candidate, error) bool) {
		f, err := xlsx.OpenFile(s.path)
		if err != nil {
			yield(company.Candidate{}, eris.Wrapf(err, "ingest: open workbook %s", s.path))
			return
		}
		sheet, err := s.pick(f)
		if err != nil {
			yield(company.Candidate{}, err)
			return
		}
		if len(sheet.Rows) == 0 {
			return
		}

		cols, err := mapHeader(rowToStrings(sheet.Rows[0]))
		if err != nil {
			yield(company.Candidate{}, err)
			return
		}
		for _, row := range sheet.Rows[1:] {
			if ctx.Err() != nil {
				yield(company.Candidate{}, eris.Wrap(ctx.Err(), "ingest: xlsx cancelled"))
				return
			}
			if !yield(cols.candidate(rowToStrings(row), s.Name()), nil) {
				return
			}
		}
	}
}

func (s *XLSXSource) pick(f *xlsx.File) (*xlsx.Sheet, error) {
	if s.sheet != "" {
		sheet, ok := f.Sheet[s.sheet]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found in %s", s.sheet, s.path)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: workbook %s has no sheets", s.path)
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
