// Package resolver fills placeholder record fields through ordered chains
// of lookup strategies. The first strategy to accept wins; a chain that runs
// out of strategies leaves the field unresolved.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/pkg/webmeta"
)

// Confidence grades how a resolved value was matched to its subject.
type Confidence int

const (
	// ConfidenceNone marks unconditional fallbacks.
	ConfidenceNone Confidence = iota
	// ConfidenceFuzzy marks values matched indirectly (domain label, title).
	ConfidenceFuzzy
	// ConfidenceExact marks values verified against the subject directly.
	ConfidenceExact
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceExact:
		return "exact"
	case ConfidenceFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Subject is what strategies resolve against.
type Subject struct {
	Record company.Record
	// Meta is the page metadata fetched once per record for description
	// strategies. Nil for other chains.
	Meta *webmeta.Meta
}

// Outcome is a single strategy's answer. A non-accepted outcome means
// "try the next strategy".
type Outcome struct {
	Accepted   bool
	Value      string
	Confidence Confidence
}

// Accept builds an accepted outcome.
func Accept(value string, c Confidence) Outcome {
	return Outcome{Accepted: true, Value: value, Confidence: c}
}

// Reject is the non-accepted outcome.
var Reject = Outcome{}

// Strategy is one step of a resolver chain. Errors are reported to the
// chain, which logs them and moves on; they never escape the chain.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, s Subject) (Outcome, error)
}

// Resolution is the result of running a chain.
type Resolution struct {
	Resolved   bool
	Value      string
	Confidence Confidence
	Strategy   string
}

// Resolver resolves one field of a record.
type Resolver interface {
	Resolve(ctx context.Context, r company.Record) Resolution
}

// Chain tries strategies in priority order and stops at the first accepted
// outcome.
type Chain struct {
	field      string
	strategies []Strategy
}

// NewChain creates a Chain resolving field with the given strategies.
func NewChain(field string, strategies ...Strategy) *Chain {
	return &Chain{field: field, strategies: strategies}
}

// Resolve runs the chain for s.
func (c *Chain) Resolve(ctx context.Context, s Subject) Resolution {
	for _, st := range c.strategies {
		if ctx.Err() != nil {
			break
		}
		out, err := st.Attempt(ctx, s)
		if err != nil {
			zap.L().Debug("resolver: strategy failed, trying next",
				zap.String("field", c.field),
				zap.String("strategy", st.Name()),
				zap.String("company", s.Record.Name),
				zap.Error(err),
			)
			continue
		}
		if out.Accepted && out.Value != "" {
			return Resolution{
				Resolved:   true,
				Value:      out.Value,
				Confidence: out.Confidence,
				Strategy:   st.Name(),
			}
		}
	}
	return Resolution{}
}
