// Package postgrest provides a minimal client for PostgREST-compatible
// table endpoints (Supabase REST): filtered selects and batched upserts.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-cli/internal/resilience"
)

// Client defines the table operations used by the directory store.
type Client interface {
	// Select decodes the rows of table matching q into out.
	Select(ctx context.Context, table string, q Query, out any) error
	// Upsert inserts rows into table, resolving rows that collide on the
	// onConflict column as res says.
	Upsert(ctx context.Context, table string, rows any, onConflict string, res Resolution) error
}

// Resolution selects how PostgREST treats rows that collide on the
// on_conflict column.
type Resolution string

// Resolutions understood by the Prefer header.
const (
	MergeDuplicates  Resolution = "merge-duplicates"
	IgnoreDuplicates Resolution = "ignore-duplicates"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("postgrest: status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is safe to retry.
func (e *StatusError) Transient() bool {
	return resilience.RetryableStatus(e.StatusCode)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPathPrefix overrides the REST path prefix (default "/rest/v1").
func WithPathPrefix(p string) Option {
	return func(c *httpClient) {
		c.prefix = strings.TrimRight(p, "/")
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	prefix  string
	http    *http.Client
}

// NewClient creates a PostgREST client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		prefix:  "/rest/v1",
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) tableURL(table string) string {
	return c.baseURL + c.prefix + "/" + url.PathEscape(table)
}

func (c *httpClient) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

func (c *httpClient) Select(ctx context.Context, table string, q Query, out any) error {
	reqURL := c.tableURL(table) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "postgrest: create request")
	}
	c.setHeaders(req)

	body, err := c.do(req)
	if err != nil {
		return eris.Wrapf(err, "postgrest: select %s", table)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "postgrest: decode %s", table)
	}
	return nil
}

func (c *httpClient) Upsert(ctx context.Context, table string, rows any, onConflict string, res Resolution) error {
	if res == "" {
		res = MergeDuplicates
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "postgrest: marshal rows")
	}

	reqURL := c.tableURL(table)
	if onConflict != "" {
		reqURL += "?on_conflict=" + url.QueryEscape(onConflict)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "postgrest: create request")
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution="+string(res)+",return=minimal")

	if _, err := c.do(req); err != nil {
		return eris.Wrapf(err, "postgrest: upsert %s", table)
	}
	return nil
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Query describes a filtered select.
type Query struct {
	// Columns is the select list; empty selects "*".
	Columns []string
	// Filters are ANDed "column=op.value" conditions.
	Filters []Filter
	// Or is a list of conditions combined with or=(...).
	Or []Condition
	// Order is the order clause, e.g. "id.asc".
	Order string
	// Limit caps the number of rows; 0 means no limit.
	Limit int
	// Offset skips rows, for paging.
	Offset int
}

// Filter is a top-level column condition.
type Filter struct {
	Column string
	Op     string
	Value  string
}

// Condition is one term of an or=(...) group.
type Condition struct {
	Column string
	Op     string
	Value  string
}

// Ilike builds a case-insensitive pattern condition. "*" is the wildcard.
func Ilike(column, pattern string) Condition {
	return Condition{Column: column, Op: "ilike", Value: pattern}
}

// Eq builds an equality condition.
func Eq(column, value string) Condition {
	return Condition{Column: column, Op: "eq", Value: value}
}

// IsNull builds an IS NULL condition.
func IsNull(column string) Condition {
	return Condition{Column: column, Op: "is", Value: "null"}
}

// NotIn builds a top-level "not in" filter over values.
func NotIn(column string, values []string) Filter {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	return Filter{Column: column, Op: "not.in", Value: "(" + strings.Join(quoted, ",") + ")"}
}

func (c Condition) String() string {
	v := c.Value
	if c.Op != "is" {
		v = quote(v)
	}
	return c.Column + "." + c.Op + "." + v
}

// quote wraps v in double quotes when it contains PostgREST reserved
// characters. An empty value is quoted so eq."" matches empty strings.
func quote(v string) string {
	if v == "" {
		return `""`
	}
	if strings.ContainsAny(v, `,.:()" \`) {
		return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
	}
	return v
}

// Encode renders the query string.
func (q Query) Encode() string {
	vals := url.Values{}
	cols := "*"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ",")
	}
	vals.Set("select", cols)
	for _, f := range q.Filters {
		vals.Add(f.Column, f.Op+"."+f.Value)
	}
	if len(q.Or) > 0 {
		terms := make([]string, len(q.Or))
		for i, c := range q.Or {
			terms[i] = c.String()
		}
		vals.Set("or", "("+strings.Join(terms, ",")+")")
	}
	if q.Order != "" {
		vals.Set("order", q.Order)
	}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		vals.Set("offset", strconv.Itoa(q.Offset))
	}
	return vals.Encode()
}
