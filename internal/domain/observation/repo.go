package observation

import (
	"context"

	"github.com/google/uuid"

	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// Store persists obs nodes. Group writes cover the group and its members in
// one atomic operation.
type Store interface {
	Create(ctx context.Context, group *Obs) error
	GetGroupByFHIRID(ctx context.Context, fhirID string) (*Obs, error)
	Update(ctx context.Context, group *Obs) error
	Void(ctx context.Context, id uuid.UUID) error
	SearchGroups(ctx context.Context, conceptID uuid.UUID, params fhir.Params, limit, offset int) ([]*Obs, int, error)
}

// EncounterStore reads encounters with their participants.
type EncounterStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	GetByFHIRID(ctx context.Context, fhirID string) (*Encounter, error)
}
