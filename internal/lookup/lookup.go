// Package lookup resolves requests to archived captures: an exact
// canonical-key match first, then fallback comparators in priority order.
package lookup

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

// ErrNotFound is returned by Find when no capture matches. It is an
// expected outcome; callers decide between a live fetch and failing.
var ErrNotFound = fmt.Errorf("no archived capture: %w", apperrors.ErrNotFound)

// Strategy names how a match was found.
type Strategy string

const (
	StrategyExact                Strategy = "exact"
	StrategySameURLIgnoringQuery Strategy = "same_url_ignoring_query"
	StrategyURLPrefix            Strategy = "url_prefix"
)

// Index is the read side of a loaded container index.
type Index interface {
	// Candidates returns the captures under key, oldest first.
	Candidates(key string) []*cdxj.Entry
	// Entries returns every capture in index order.
	Entries() []*cdxj.Entry
}

// Request is what a crawler is about to fetch.
type Request struct {
	Method string
	URL    string
	Body   []byte
}

// Match is a capture chosen for a request.
type Match struct {
	Entry    *cdxj.Entry
	Strategy Strategy
	// Key is the canonical key of the request.
	Key cdxj.Key
}

// Comparator ranks a stored key against a requested one. Lower ranks are
// better; ok is false when the stored key does not qualify.
type Comparator struct {
	Name Strategy
	Rank func(stored, requested cdxj.Key) (rank int, ok bool)
}

// DefaultComparators returns the fallback comparators in priority order.
func DefaultComparators() []Comparator {
	return []Comparator{SameURLIgnoringQuery(), URLPrefix()}
}

// SameURLIgnoringQuery matches captures of the same URL with any query.
func SameURLIgnoringQuery() Comparator {
	return Comparator{
		Name: StrategySameURLIgnoringQuery,
		Rank: func(stored, requested cdxj.Key) (int, bool) {
			return 0, sameMethod(stored, requested) && stored.Path == requested.Path
		},
	}
}

// URLPrefix matches captures whose URL extends the requested one. The
// stored URL closest in length to the request ranks best.
func URLPrefix() Comparator {
	return Comparator{
		Name: StrategyURLPrefix,
		Rank: func(stored, requested cdxj.Key) (int, bool) {
			if !sameMethod(stored, requested) || !strings.HasPrefix(stored.Path, requested.Path) {
				return 0, false
			}
			return len(stored.Path) - len(requested.Path), true
		},
	}
}

func sameMethod(stored, requested cdxj.Key) bool {
	return answers(stored.Method, requested.Method)
}

// answers reports whether a capture made with the stored method can serve a
// request with the requested one. HEAD requests accept GET captures, but a
// HEAD capture has no body and only answers HEAD.
func answers(stored, requested string) bool {
	if stored == requested {
		return true
	}
	return requested == http.MethodHead && stored == http.MethodGet
}

// newest returns the latest capture under key that can serve method.
func (p *Policy) newest(key, method string) (*cdxj.Entry, bool) {
	candidates := p.index.Candidates(key)
	for i := len(candidates) - 1; i >= 0; i-- {
		if answers(cdxj.KeyOf(candidates[i]).Method, method) {
			return candidates[i], true
		}
	}
	return nil, false
}

// Option configures a Policy.
type Option func(*Policy)

// WithComparators replaces the fallback comparators. None disables fallback.
func WithComparators(c ...Comparator) Option {
	return func(p *Policy) {
		p.comparators = c
	}
}

// Policy finds captures in an index. It holds no mutable state and is safe
// for concurrent use.
type Policy struct {
	index       Index
	comparators []Comparator
}

// New creates a Policy over index.
func New(index Index, opts ...Option) *Policy {
	p := &Policy{index: index, comparators: DefaultComparators()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Find returns the capture for req, or ErrNotFound.
func (p *Policy) Find(req Request) (*Match, error) {
	key, err := cdxj.Canonicalize(req.Method, req.URL, req.Body)
	if err != nil {
		return nil, err
	}

	if e, ok := p.newest(key.SURT, key.Method); ok {
		return &Match{Entry: e, Strategy: StrategyExact, Key: key}, nil
	}

	entries := p.index.Entries()
	for _, c := range p.comparators {
		var (
			best     *cdxj.Entry
			bestRank int
		)
		for _, e := range entries {
			rank, ok := c.Rank(cdxj.KeyOf(e), key)
			if !ok {
				continue
			}
			if best == nil || rank < bestRank {
				best, bestRank = e, rank
			}
		}
		if best != nil {
			// The winning key may hold several captures; serve its newest.
			if newest, ok := p.newest(best.SURT, key.Method); ok {
				best = newest
			}
			return &Match{Entry: best, Strategy: c.Name, Key: key}, nil
		}
	}

	return nil, apperrors.WrapWithContextf(ErrNotFound, "%s %s", key.Method, req.URL)
}
