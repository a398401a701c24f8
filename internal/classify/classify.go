// Package classify tags entity names with an entity type using a partial
// match lookup. When several lookup keys match, a tie-break policy picks one
// deterministically and the ambiguity is logged.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"billingsync/internal/log"
)

// Candidate is one matching lookup entry.
type Candidate struct {
	Key   string
	Label string
}

// Match is a lookup answer. A single hit sets Label; several hits populate
// Candidates in lookup order. The zero Match means no match.
type Match struct {
	Label      string
	Candidates []Candidate
}

// Lookup resolves a name to its classification.
type Lookup interface {
	Lookup(ctx context.Context, name string) (Match, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, name string) (Match, error)

func (f LookupFunc) Lookup(ctx context.Context, name string) (Match, error) { return f(ctx, name) }

// TieBreak picks one of several candidates. It is only called with two or
// more candidates.
type TieBreak func(candidates []Candidate) Candidate

// FirstKey picks the lexicographically smallest key.
func FirstKey(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Key < best.Key {
			best = c
		}
	}
	return best
}

// FirstDeclared picks the first candidate in lookup order.
func FirstDeclared(candidates []Candidate) Candidate {
	return candidates[0]
}

// ParseTieBreak maps TIE_BREAK config values to policies.
func ParseTieBreak(name string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "first-key":
		return FirstKey, nil
	case "first-declared":
		return FirstDeclared, nil
	default:
		return nil, fmt.Errorf("unknown tie-break policy %q (want first-key or first-declared)", name)
	}
}

// Result is the classification of one name.
type Result struct {
	Label      string
	Found      bool
	Ambiguous  bool
	Candidates []Candidate
}

// Classifier applies a Lookup and a TieBreak.
type Classifier struct {
	lookup   Lookup
	tieBreak TieBreak
	logger   *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithTieBreak overrides the default FirstKey policy.
func WithTieBreak(tb TieBreak) Option {
	return func(c *Classifier) {
		if tb != nil {
			c.tieBreak = tb
		}
	}
}

// WithLogger sets the logger used for ambiguity and miss reports.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(lookup Lookup, opts ...Option) *Classifier {
	c := &Classifier{lookup: lookup, tieBreak: FirstKey, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Using returns a copy of c that logs to l. Pipelines use it to route
// classifier output into the run log.
func (c *Classifier) Using(l *slog.Logger) *Classifier {
	cp := *c
	cp.logger = l
	return &cp
}

// Classify resolves name. A blank name or a lookup miss is an absent result,
// not an error.
func (c *Classifier) Classify(ctx context.Context, name string) (Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{}, nil
	}
	m, err := c.lookup.Lookup(ctx, name)
	if err != nil {
		return Result{}, fmt.Errorf("classify %q: %w", name, err)
	}

	switch {
	case len(m.Candidates) > 1:
		chosen := c.tieBreak(m.Candidates)
		c.logger.WarnContext(ctx, "Ambiguous classification",
			log.FieldComponent, log.ComponentClassify,
			"name", name,
			"candidates", keys(m.Candidates),
			"chosen_key", chosen.Key,
			"label", chosen.Label)
		return Result{Label: chosen.Label, Found: true, Ambiguous: true, Candidates: m.Candidates}, nil
	case len(m.Candidates) == 1:
		return Result{Label: m.Candidates[0].Label, Found: true, Candidates: m.Candidates}, nil
	case m.Label != "":
		return Result{Label: m.Label, Found: true}, nil
	default:
		c.logger.InfoContext(ctx, "No classification found",
			log.FieldComponent, log.ComponentClassify,
			"name", name)
		return Result{}, nil
	}
}

func keys(cs []Candidate) string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Key
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
