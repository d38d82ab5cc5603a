package terminology

import (
	"context"
)

// Dictionary answers concept lookups by source vocabulary mapping. A mapping
// may legitimately match zero or several concepts; the resolver decides what
// that means.
type Dictionary interface {
	LookupByMapping(ctx context.Context, vocabulary, code string) ([]*Concept, error)
}
