package practitioner

import (
	"context"

	"github.com/google/uuid"

	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

type Repository interface {
	Create(ctx context.Context, p *Practitioner) error
	GetByFHIRID(ctx context.Context, fhirID string) (*Practitioner, error)
	Update(ctx context.Context, p *Practitioner) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params fhir.Params, limit, offset int) ([]*Practitioner, int, error)
}
