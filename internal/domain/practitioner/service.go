package practitioner

import (
	"context"
	"time"

	"github.com/medrec/fhir-bridge/internal/domain/provenance"
	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// Service is the resource facade: it owns the create/update identifier
// contract, keeps validation ahead of any store write, and records every
// successful write in the audit log.
type Service struct {
	repo    Repository
	audit   provenance.AuditLog
	history *provenance.Reconstructor
}

func NewService(repo Repository, audit provenance.AuditLog) *Service {
	return &Service{repo: repo, audit: audit, history: provenance.NewReconstructor(audit)}
}

func (s *Service) Get(ctx context.Context, fhirID string) (*Practitioner, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

func (s *Service) Search(ctx context.Context, params fhir.Params, limit, offset int) ([]*Practitioner, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

func (s *Service) Create(ctx context.Context, resource map[string]interface{}, agent string) (*Practitioner, error) {
	p := &Practitioner{}
	if err := applyResource(resource, p); err != nil {
		return nil, err
	}
	if p.FamilyName == nil && p.GivenName == nil {
		return nil, fhir.NewValidation("Practitioner must have at least one name")
	}

	id, err := resourceID(resource)
	if err != nil {
		return nil, err
	}
	if id != "" {
		if _, err := s.repo.GetByFHIRID(ctx, id); err == nil {
			return nil, fhir.NewConflict("Practitioner id %s is already in use", id)
		} else if fhir.KindOf(err) != fhir.KindNotFound {
			return nil, err
		}
		p.FHIRID = id
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.record(ctx, p, provenance.EventCreate, agent)
	return p, nil
}

func (s *Service) Update(ctx context.Context, urlID string, resource map[string]interface{}, agent string) (*Practitioner, error) {
	bodyID, err := resourceID(resource)
	if err != nil {
		return nil, err
	}
	if bodyID == "" {
		return nil, fhir.NewConflict("Practitioner resource must contain an ID element for update")
	}
	if bodyID != urlID {
		return nil, fhir.NewConflict("Practitioner id %s must match the request URL", bodyID)
	}

	existing, err := s.repo.GetByFHIRID(ctx, urlID)
	if err != nil {
		return nil, err
	}
	if err := applyResource(resource, existing); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	s.record(ctx, existing, provenance.EventUpdate, agent)
	return existing, nil
}

// Delete voids the practitioner and returns its pre-delete state.
func (s *Service) Delete(ctx context.Context, fhirID string) (*Practitioner, error) {
	existing, err := s.repo.GetByFHIRID(ctx, fhirID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SoftDelete(ctx, existing.ID); err != nil {
		return nil, err
	}
	return existing, nil
}

// History reconstructs the practitioner's revisions from the audit log. The
// practitioner must exist; its history may still be empty.
func (s *Service) History(ctx context.Context, fhirID string) (*Practitioner, []provenance.Revision, error) {
	existing, err := s.repo.GetByFHIRID(ctx, fhirID)
	if err != nil {
		return nil, nil, err
	}
	revisions, err := s.history.HistoryFor(ctx, existing.ID)
	if err != nil {
		return nil, nil, err
	}
	return existing, revisions, nil
}

// record is best-effort: a failed audit write must not fail the request the
// write already succeeded for.
func (s *Service) record(ctx context.Context, p *Practitioner, kind provenance.EventKind, agent string) {
	_ = s.audit.Record(ctx, provenance.Event{
		EntityID: p.ID,
		Kind:     kind,
		At:       time.Now().UTC(),
		Agent:    agent,
	})
}
