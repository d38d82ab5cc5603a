package immunization

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/fhir-bridge/internal/domain/observation"
	"github.com/medrec/fhir-bridge/internal/domain/provenance"
	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// Service is the resource facade over the obs-group store. Every operation
// validates and translates before it writes; a request that fails half way
// through validation leaves the store untouched.
type Service struct {
	obs        observation.Store
	encounters observation.EncounterStore
	translator *Translator
	audit      provenance.AuditLog
	history    *provenance.Reconstructor
}

func NewService(obs observation.Store, encounters observation.EncounterStore, translator *Translator, audit provenance.AuditLog) *Service {
	return &Service{
		obs:        obs,
		encounters: encounters,
		translator: translator,
		audit:      audit,
		history:    provenance.NewReconstructor(audit),
	}
}

func (s *Service) Get(ctx context.Context, fhirID string) (*Immunization, error) {
	group, err := s.getGroup(ctx, fhirID)
	if err != nil {
		return nil, err
	}
	enc, err := s.encounters.GetByID(ctx, group.EncounterID)
	if err != nil {
		return nil, err
	}
	return s.translator.FromObs(ctx, group, enc)
}

func (s *Service) Create(ctx context.Context, resource map[string]interface{}, agent string) (*Immunization, error) {
	p, err := s.translator.FromResource(ctx, resource)
	if err != nil {
		return nil, err
	}
	if p.patientID == uuid.Nil {
		return nil, fhir.NewValidation("Immunization must reference a patient")
	}
	if p.encounterRef == "" {
		return nil, fhir.NewValidation("Immunization must reference an encounter")
	}
	if p.vaccineConcept == nil {
		return nil, fhir.NewValidation("Immunization must carry a vaccineCode")
	}

	if p.id != "" {
		if _, err := s.obs.GetGroupByFHIRID(ctx, p.id); err == nil {
			return nil, fhir.NewConflict("Immunization id %s is already in use", p.id)
		} else if fhir.KindOf(err) != fhir.KindNotFound {
			return nil, err
		}
	}

	enc, err := s.encounters.GetByFHIRID(ctx, p.encounterRef)
	if err != nil {
		return nil, err
	}

	at := time.Now().UTC()
	if p.occurrence != nil {
		at = *p.occurrence
	}

	schema, err := s.translator.Schema()
	if err != nil {
		return nil, err
	}
	group, err := s.translator.codec.Encode(ctx, schema, at)
	if err != nil {
		return nil, err
	}
	if p.id != "" {
		group.FHIRID = p.id
	}
	group.PersonID = p.patientID
	group.EncounterID = enc.ID
	for _, m := range group.Members {
		m.PersonID = p.patientID
		m.EncounterID = enc.ID
	}
	if err := s.translator.Apply(ctx, p, group); err != nil {
		return nil, err
	}

	// Attribution must be answerable before anything is stored.
	if _, err := s.translator.codec.AdministeringProvider(group, enc); err != nil {
		return nil, err
	}

	if err := s.obs.Create(ctx, group); err != nil {
		return nil, err
	}
	s.record(ctx, group.ID, provenance.EventCreate, agent)
	return s.translator.FromObs(ctx, group, enc)
}

func (s *Service) Update(ctx context.Context, urlID string, resource map[string]interface{}, agent string) (*Immunization, error) {
	p, err := s.translator.FromResource(ctx, resource)
	if err != nil {
		return nil, err
	}
	if p.id == "" {
		return nil, fhir.NewConflict("Immunization resource must contain an ID element for update")
	}
	if p.id != urlID {
		return nil, fhir.NewConflict("Immunization id %s must match the request URL", p.id)
	}

	group, err := s.getGroup(ctx, urlID)
	if err != nil {
		return nil, err
	}
	enc, err := s.encounters.GetByID(ctx, group.EncounterID)
	if err != nil {
		return nil, err
	}

	if err := s.translator.Apply(ctx, p, group); err != nil {
		return nil, err
	}
	if p.occurrence != nil {
		group.ObsDatetime = *p.occurrence
		for _, m := range group.Members {
			m.ObsDatetime = *p.occurrence
		}
	}

	if err := s.obs.Update(ctx, group); err != nil {
		return nil, err
	}
	s.record(ctx, group.ID, provenance.EventUpdate, agent)
	return s.translator.FromObs(ctx, group, enc)
}

// Delete voids the backing group and returns the resource's pre-delete state.
func (s *Service) Delete(ctx context.Context, fhirID string) (*Immunization, error) {
	im, err := s.Get(ctx, fhirID)
	if err != nil {
		return nil, err
	}
	if err := s.obs.Void(ctx, im.GroupID); err != nil {
		return nil, err
	}
	return im, nil
}

func (s *Service) Search(ctx context.Context, params fhir.Params, limit, offset int) ([]*Immunization, int, error) {
	schema, err := s.translator.Schema()
	if err != nil {
		return nil, 0, err
	}
	grouping, err := s.translator.resolver.Resolve(ctx, schema.Grouping)
	if err != nil {
		return nil, 0, err
	}

	groups, total, err := s.obs.SearchGroups(ctx, grouping.ID, params, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*Immunization, 0, len(groups))
	for _, group := range groups {
		enc, err := s.encounters.GetByID(ctx, group.EncounterID)
		if err != nil {
			return nil, 0, err
		}
		im, err := s.translator.FromObs(ctx, group, enc)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, im)
	}
	return items, total, nil
}

func (s *Service) History(ctx context.Context, fhirID string) (*Immunization, []provenance.Revision, error) {
	im, err := s.Get(ctx, fhirID)
	if err != nil {
		return nil, nil, err
	}
	revisions, err := s.history.HistoryFor(ctx, im.GroupID)
	if err != nil {
		return nil, nil, err
	}
	return im, revisions, nil
}

// getGroup reads the backing obs group, renaming store-level not-found to
// the resource the caller asked about.
func (s *Service) getGroup(ctx context.Context, fhirID string) (*observation.Obs, error) {
	group, err := s.obs.GetGroupByFHIRID(ctx, fhirID)
	if err != nil {
		if fhir.KindOf(err) == fhir.KindNotFound {
			return nil, fhir.NewNotFound("Immunization", fhirID)
		}
		return nil, err
	}
	return group, nil
}

func (s *Service) record(ctx context.Context, entityID uuid.UUID, kind provenance.EventKind, agent string) {
	_ = s.audit.Record(ctx, provenance.Event{
		EntityID: entityID,
		Kind:     kind,
		At:       time.Now().UTC(),
		Agent:    agent,
	})
}
