package terminology

import (
	"context"
	"sync"

	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// Resolver turns "<vocabulary>:<code>" reference terms into concepts. A term
// must map to exactly one live concept: zero mappings means the dictionary is
// missing an entry, more than one means the dictionary is ambiguous, and both
// are deployment problems rather than client errors.
//
// Resolutions are memoized per instance. A codec pass resolves the same
// schema terms for every node it touches, so repeat lookups stay off the
// dictionary.
type Resolver struct {
	dict Dictionary

	mu    sync.Mutex
	cache map[string]*Concept
}

func NewResolver(dict Dictionary) *Resolver {
	return &Resolver{dict: dict, cache: make(map[string]*Concept)}
}

func (r *Resolver) Resolve(ctx context.Context, term string) (*Concept, error) {
	r.mu.Lock()
	if c, ok := r.cache[term]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	vocabulary, code, ok := SplitTerm(term)
	if !ok {
		return nil, fhir.NewConfiguration("invalid concept reference %q, expected \"<vocabulary>:<code>\"", term)
	}

	matches, err := r.dict.LookupByMapping(ctx, vocabulary, code)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fhir.NewConfiguration("no concept found for reference term %q", term)
	case 1:
	default:
		return nil, fhir.NewConfiguration("reference term %q maps to %d concepts", term, len(matches))
	}

	r.mu.Lock()
	r.cache[term] = matches[0]
	r.mu.Unlock()
	return matches[0], nil
}
