package observation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/fhir-bridge/internal/config"
	"github.com/medrec/fhir-bridge/internal/domain/terminology"
	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// GroupSchema names an obs-group shape by reference terms: the grouping
// concept plus the ordered member concepts. Order is significant; callers
// address slots by the term they configured at each position.
type GroupSchema struct {
	Grouping string
	Members  []string
}

// SlotMap addresses the members of a decoded group by their schema term.
type SlotMap map[string]*Obs

// Codec encodes and decodes obs groups against a GroupSchema. Both
// directions resolve the schema's reference terms through the terminology
// resolver, so a broken dictionary surfaces as a configuration error before
// anything touches the store.
type Codec struct {
	resolver *terminology.Resolver
	role     string
}

// NewCodec builds a codec. role is the encounter role that marks the
// administering provider; it may be empty when no deployment needs provider
// attribution, and its absence is reported only when attribution is asked for.
func NewCodec(resolver *terminology.Resolver, role string) *Codec {
	return &Codec{resolver: resolver, role: role}
}

// Encode constructs a fresh group node for the schema: the grouping concept
// with one empty leaf member per schema member, every node stamped at the
// same instant. Pure construction, nothing is persisted.
func (c *Codec) Encode(ctx context.Context, schema GroupSchema, at time.Time) (*Obs, error) {
	grouping, err := c.resolver.Resolve(ctx, schema.Grouping)
	if err != nil {
		return nil, err
	}

	group := &Obs{ID: uuid.New(), ConceptID: grouping.ID, ObsDatetime: at}
	group.FHIRID = group.ID.String()

	for _, term := range schema.Members {
		concept, err := c.resolver.Resolve(ctx, term)
		if err != nil {
			return nil, err
		}
		member := &Obs{
			ID:          uuid.New(),
			ConceptID:   concept.ID,
			ObsDatetime: at,
			GroupID:     &group.ID,
		}
		member.FHIRID = member.ID.String()
		group.Members = append(group.Members, member)
	}
	return group, nil
}

// Decode validates a stored group against the schema and returns its members
// addressed by schema term. Members whose concept is not in the schema are
// ignored; they belong to other consumers of the same group. Decoding is
// deterministic: the same node and schema always produce the same SlotMap or
// the same error.
func (c *Codec) Decode(ctx context.Context, schema GroupSchema, node *Obs) (SlotMap, error) {
	grouping, err := c.resolver.Resolve(ctx, schema.Grouping)
	if err != nil {
		return nil, err
	}
	if node.ConceptID != grouping.ID {
		return nil, fhir.NewValidation("obs %s is not a %s group", node.FHIRID, schema.Grouping)
	}

	slots := SlotMap{}
	for _, term := range schema.Members {
		concept, err := c.resolver.Resolve(ctx, term)
		if err != nil {
			return nil, err
		}
		for _, member := range node.Members {
			if member.ConceptID != concept.ID {
				continue
			}
			if _, dup := slots[term]; dup {
				return nil, fhir.NewValidation("obs %s has more than one %s member", node.FHIRID, term)
			}
			slots[term] = member
		}
	}
	if len(slots) == 0 {
		return nil, fhir.NewValidation("obs %s has no members recognized by the group schema", node.FHIRID)
	}
	return slots, nil
}

// AdministeringProvider returns the one encounter participant holding the
// configured administering role. Zero candidates and several candidates are
// both unanswerable, not guessable.
func (c *Codec) AdministeringProvider(node *Obs, enc *Encounter) (uuid.UUID, error) {
	if c.role == "" {
		return uuid.Nil, fhir.NewConfiguration("administering encounter role is not set (%s)",
			config.AdministeringEncounterRoleKey)
	}

	var found []uuid.UUID
	for _, p := range enc.Participants {
		if p.Role == c.role {
			found = append(found, p.ProviderID)
		}
	}
	if len(found) != 1 {
		return uuid.Nil, fhir.NewValidation(
			"cannot determine the administering provider for obs %s in encounter %s",
			node.FHIRID, enc.FHIRID)
	}
	return found[0], nil
}
