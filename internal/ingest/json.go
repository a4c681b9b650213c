package ingest

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-cli/internal/company"
)

// JSONSource streams candidates from a JSON array of objects with the
// candidate field names.
type JSONSource struct {
	path string
}

// NewJSONSource creates a JSONSource for path.
func NewJSONSource(path string) *JSONSource {
	return &JSONSource{path: path}
}

// Name returns the file name.
func (s *JSONSource) Name() string { return filepath.Base(s.path) }

// Records decodes the array one element at a time.
func (s *JSONSource) Records(ctx context.Context) iter.Seq2[company.Candidate, error] {
	return func(yield func(company.Candidate, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(company.Candidate{}, eris.Wrapf(err, "ingest: open %s", s.path))
			return
		}
		defer f.Close() //nolint:errcheck

		for c, err := range decodeArray(ctx, f) {
			if err == nil {
				c.Source = s.Name()
			}
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}

func decodeArray(ctx context.Context, r io.Reader) iter.Seq2[company.Candidate, error] {
	return func(yield func(company.Candidate, error) bool) {
		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(company.Candidate{}, eris.Wrap(err, "ingest: read opening token"))
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			yield(company.Candidate{}, eris.Errorf("ingest: expected '[', got %v", tok))
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				yield(company.Candidate{}, eris.Wrap(ctx.Err(), "ingest: json cancelled"))
				return
			}
			var c company.Candidate
			if err := decoder.Decode(&c); err != nil {
				yield(company.Candidate{}, eris.Wrap(err, "ingest: decode element"))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}
