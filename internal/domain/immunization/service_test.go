package immunization

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/fhir-bridge/internal/config"
	"github.com/medrec/fhir-bridge/internal/domain/observation"
	"github.com/medrec/fhir-bridge/internal/domain/provenance"
	"github.com/medrec/fhir-bridge/internal/domain/terminology"
	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// =========== Mocks ===========

type mockDictionary struct {
	concepts map[string][]*terminology.Concept
}

func newMockDictionary() *mockDictionary {
	return &mockDictionary{concepts: make(map[string][]*terminology.Concept)}
}

func (m *mockDictionary) add(term string) *terminology.Concept {
	c := &terminology.Concept{ID: uuid.New()}
	m.concepts[term] = append(m.concepts[term], c)
	return c
}

func (m *mockDictionary) LookupByMapping(_ context.Context, vocabulary, code string) ([]*terminology.Concept, error) {
	return m.concepts[vocabulary+":"+code], nil
}

type mockObsStore struct {
	groups map[uuid.UUID]*observation.Obs
}

func newMockObsStore() *mockObsStore {
	return &mockObsStore{groups: make(map[uuid.UUID]*observation.Obs)}
}

func (m *mockObsStore) Create(_ context.Context, group *observation.Obs) error {
	m.groups[group.ID] = group
	return nil
}

func (m *mockObsStore) GetGroupByFHIRID(_ context.Context, fhirID string) (*observation.Obs, error) {
	for _, g := range m.groups {
		if g.FHIRID == fhirID && !g.Voided {
			return g, nil
		}
	}
	return nil, fhir.NewNotFound("Observation", fhirID)
}

func (m *mockObsStore) Update(_ context.Context, group *observation.Obs) error {
	if _, ok := m.groups[group.ID]; !ok {
		return fhir.NewNotFound("Observation", group.FHIRID)
	}
	m.groups[group.ID] = group
	return nil
}

func (m *mockObsStore) Void(_ context.Context, id uuid.UUID) error {
	if g, ok := m.groups[id]; ok {
		g.Voided = true
	}
	return nil
}

func (m *mockObsStore) SearchGroups(_ context.Context, conceptID uuid.UUID, params fhir.Params, limit, offset int) ([]*observation.Obs, int, error) {
	var result []*observation.Obs
	for _, g := range m.groups {
		if g.Voided || g.ConceptID != conceptID {
			continue
		}
		if patients, ok := params["patient"]; ok {
			if !strings.HasSuffix(patients[0], g.PersonID.String()) {
				continue
			}
		}
		result = append(result, g)
	}
	return result, len(result), nil
}

type mockEncounterStore struct {
	encounters map[uuid.UUID]*observation.Encounter
}

func newMockEncounterStore() *mockEncounterStore {
	return &mockEncounterStore{encounters: make(map[uuid.UUID]*observation.Encounter)}
}

func (m *mockEncounterStore) add(enc *observation.Encounter) {
	m.encounters[enc.ID] = enc
}

func (m *mockEncounterStore) GetByID(_ context.Context, id uuid.UUID) (*observation.Encounter, error) {
	enc, ok := m.encounters[id]
	if !ok {
		return nil, fhir.NewNotFound("Encounter", id.String())
	}
	return enc, nil
}

func (m *mockEncounterStore) GetByFHIRID(_ context.Context, fhirID string) (*observation.Encounter, error) {
	for _, enc := range m.encounters {
		if enc.FHIRID == fhirID {
			return enc, nil
		}
	}
	return nil, fhir.NewNotFound("Encounter", fhirID)
}

type mockAuditLog struct {
	events map[uuid.UUID][]provenance.Event
}

func newMockAuditLog() *mockAuditLog {
	return &mockAuditLog{events: make(map[uuid.UUID][]provenance.Event)}
}

func (m *mockAuditLog) Record(_ context.Context, ev provenance.Event) error {
	m.events[ev.EntityID] = append(m.events[ev.EntityID], ev)
	return nil
}

func (m *mockAuditLog) EventsFor(_ context.Context, entityID uuid.UUID) ([]provenance.Event, error) {
	return m.events[entityID], nil
}

// =========== Fixture ===========

type testEnv struct {
	svc        *Service
	obs        *mockObsStore
	encounters *mockEncounterStore
	audit      *mockAuditLog
	dict       *mockDictionary
	patientID  uuid.UUID
	providerID uuid.UUID
	encounter  *observation.Encounter
}

func newTestEnv() *testEnv {
	cfg := &config.Config{
		ImmunizationGroupingConcept: "CIEL:1421",
		ImmunizationMemberConcepts:  "CIEL:984,CIEL:1410,CIEL:1418,CIEL:1419,CIEL:1420,CIEL:165907",
		AdministeringEncounterRole:  "Clinician",
	}

	dict := newMockDictionary()
	dict.add("CIEL:1421")
	for _, term := range cfg.MemberConceptList() {
		dict.add(term)
	}
	dict.add("CIEL:886")

	resolver := terminology.NewResolver(dict)
	codec := observation.NewCodec(resolver, cfg.AdministeringEncounterRole)
	translator := NewTranslator(codec, resolver, cfg)

	obs := newMockObsStore()
	encounters := newMockEncounterStore()
	audit := newMockAuditLog()

	env := &testEnv{
		svc:        NewService(obs, encounters, translator, audit),
		obs:        obs,
		encounters: encounters,
		audit:      audit,
		dict:       dict,
		patientID:  uuid.New(),
		providerID: uuid.New(),
	}
	env.encounter = &observation.Encounter{
		ID:       uuid.New(),
		FHIRID:   uuid.New().String(),
		PersonID: env.patientID,
		Participants: []observation.Participant{
			{ProviderID: uuid.New(), Role: "Clerk"},
			{ProviderID: env.providerID, Role: "Clinician"},
		},
	}
	encounters.add(env.encounter)
	return env
}

func (env *testEnv) resource() map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Immunization",
		"status":       "completed",
		"patient":      map[string]interface{}{"reference": "Patient/" + env.patientID.String()},
		"encounter":    map[string]interface{}{"reference": "Encounter/" + env.encounter.FHIRID},
		"vaccineCode": map[string]interface{}{
			"coding": []interface{}{
				map[string]interface{}{"system": "CIEL", "code": "886"},
			},
		},
		"occurrenceDateTime": "2026-01-05T10:00:00Z",
		"lotNumber":          "AAJN11K",
		"expirationDate":     "2027-07-31",
		"protocolApplied": []interface{}{
			map[string]interface{}{"doseNumberPositiveInt": float64(2)},
		},
	}
}

// =========== Tests ===========

func TestCreate_RoundTrip(t *testing.T) {
	env := newTestEnv()
	im, err := env.svc.Create(context.Background(), env.resource(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if im.PatientID != env.patientID {
		t.Errorf("patient = %v", im.PatientID)
	}
	if im.PerformerID != env.providerID {
		t.Errorf("performer should be the clinician participant, got %v", im.PerformerID)
	}
	if im.LotNumber == nil || *im.LotNumber != "AAJN11K" {
		t.Errorf("lot number = %v", im.LotNumber)
	}
	if im.DoseNumber == nil || *im.DoseNumber != 2 {
		t.Errorf("dose number = %v", im.DoseNumber)
	}
	if im.OccurrenceDate == nil || !im.OccurrenceDate.Equal(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("occurrence = %v", im.OccurrenceDate)
	}

	got, err := env.svc.Get(context.Background(), im.FHIRID)
	if err != nil {
		t.Fatalf("read-back failed: %v", err)
	}
	if got.VaccineConceptID != im.VaccineConceptID {
		t.Error("vaccine concept lost on read-back")
	}

	events := env.audit.events[im.GroupID]
	if len(events) != 1 || events[0].Kind != provenance.EventCreate {
		t.Errorf("expected one CREATE event, got %v", events)
	}
}

func TestCreate_MissingPatient(t *testing.T) {
	env := newTestEnv()
	resource := env.resource()
	delete(resource, "patient")

	_, err := env.svc.Create(context.Background(), resource, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if fhir.KindOf(err) != fhir.KindValidation {
		t.Errorf("expected validation kind, got %v", fhir.KindOf(err))
	}
	if len(env.obs.groups) != 0 {
		t.Error("nothing should be persisted")
	}
}

func TestCreate_UnmappedVaccineCode(t *testing.T) {
	env := newTestEnv()
	resource := env.resource()
	resource["vaccineCode"] = map[string]interface{}{
		"coding": []interface{}{
			map[string]interface{}{"system": "CIEL", "code": "70000"},
		},
	}

	_, err := env.svc.Create(context.Background(), resource, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if fhir.KindOf(err) != fhir.KindConfiguration {
		t.Errorf("expected configuration kind, got %v", fhir.KindOf(err))
	}
	if !strings.Contains(err.Error(), "CIEL:70000") {
		t.Errorf("error should name the term: %v", err)
	}
}

func TestCreate_AmbiguousProviderBlocksWrite(t *testing.T) {
	env := newTestEnv()
	env.encounter.Participants = append(env.encounter.Participants,
		observation.Participant{ProviderID: uuid.New(), Role: "Clinician"})

	_, err := env.svc.Create(context.Background(), env.resource(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if fhir.KindOf(err) != fhir.KindValidation {
		t.Errorf("expected validation kind, got %v", fhir.KindOf(err))
	}
	if len(env.obs.groups) != 0 {
		t.Error("validation must run before any write")
	}
}

func TestCreate_SchemaKeyMissing(t *testing.T) {
	env := newTestEnv()
	env.svc.translator.cfg.ImmunizationGroupingConcept = ""

	_, err := env.svc.Create(context.Background(), env.resource(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if fhir.KindOf(err) != fhir.KindConfiguration {
		t.Errorf("expected configuration kind, got %v", fhir.KindOf(err))
	}
	if !strings.Contains(err.Error(), "IMMUNIZATION_GROUPING_CONCEPT") {
		t.Errorf("error should name the key: %v", err)
	}
}

func TestUpdate_WithoutID(t *testing.T) {
	env := newTestEnv()
	created, _ := env.svc.Create(context.Background(), env.resource(), "")

	resource := env.resource()
	_, err := env.svc.Update(context.Background(), created.FHIRID, resource, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if fhir.KindOf(err) != fhir.KindConflict {
		t.Errorf("expected conflict kind, got %v", fhir.KindOf(err))
	}
	if !strings.Contains(err.Error(), "must contain an ID element for update") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestUpdate_MismatchedID(t *testing.T) {
	env := newTestEnv()
	created, _ := env.svc.Create(context.Background(), env.resource(), "")

	resource := env.resource()
	resource["id"] = uuid.New().String()
	_, err := env.svc.Update(context.Background(), created.FHIRID, resource, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "must match the request URL") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestUpdate_MergesSuppliedFields(t *testing.T) {
	env := newTestEnv()
	created, _ := env.svc.Create(context.Background(), env.resource(), "")

	resource := map[string]interface{}{
		"id":        created.FHIRID,
		"lotNumber": "NEW-LOT",
	}
	updated, err := env.svc.Update(context.Background(), created.FHIRID, resource, "user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.LotNumber == nil || *updated.LotNumber != "NEW-LOT" {
		t.Errorf("lot number = %v", updated.LotNumber)
	}
	if updated.VaccineConceptID != created.VaccineConceptID {
		t.Error("absent elements must not blank existing slots")
	}
	if updated.DoseNumber == nil || *updated.DoseNumber != 2 {
		t.Error("dose number should survive the merge")
	}
}

func TestUpdate_ExportedResourceRoundTripsUnchanged(t *testing.T) {
	env := newTestEnv()
	created, err := env.svc.Create(context.Background(), env.resource(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before, err := json.Marshal(created.ToFHIR())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]interface{}
	if err := json.Unmarshal(before, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	updated, err := env.svc.Update(context.Background(), created.FHIRID, wire, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, err := json.Marshal(updated.ToFHIR())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("updating with an exported resource changed its export:\nbefore %s\nafter  %s", before, after)
	}
}

func TestUpdate_Absent(t *testing.T) {
	env := newTestEnv()
	id := uuid.New().String()
	resource := env.resource()
	resource["id"] = id

	_, err := env.svc.Update(context.Background(), id, resource, "")
	if fhir.KindOf(err) != fhir.KindNotFound {
		t.Errorf("expected not-found kind, got %v", fhir.KindOf(err))
	}
}

func TestDelete_ReturnsPreDeleteState(t *testing.T) {
	env := newTestEnv()
	created, _ := env.svc.Create(context.Background(), env.resource(), "")

	deleted, err := env.svc.Delete(context.Background(), created.FHIRID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted.LotNumber == nil || *deleted.LotNumber != "AAJN11K" {
		t.Error("delete should hand back the resource it removed")
	}
	if _, err := env.svc.Get(context.Background(), created.FHIRID); fhir.KindOf(err) != fhir.KindNotFound {
		t.Errorf("deleted immunization should read as absent, got %v", err)
	}
}

func TestGet_Absent(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Get(context.Background(), uuid.New().String())
	if fhir.KindOf(err) != fhir.KindNotFound {
		t.Errorf("expected not-found kind, got %v", fhir.KindOf(err))
	}
	if !strings.Contains(err.Error(), "Immunization") {
		t.Errorf("error should name the resource the caller asked for: %v", err)
	}
}

func TestSearch_ByPatient(t *testing.T) {
	env := newTestEnv()
	env.svc.Create(context.Background(), env.resource(), "")

	otherPatient := uuid.New()
	otherEnc := &observation.Encounter{
		ID:       uuid.New(),
		FHIRID:   uuid.New().String(),
		PersonID: otherPatient,
		Participants: []observation.Participant{
			{ProviderID: uuid.New(), Role: "Clinician"},
		},
	}
	env.encounters.add(otherEnc)
	other := env.resource()
	other["patient"] = map[string]interface{}{"reference": "Patient/" + otherPatient.String()}
	other["encounter"] = map[string]interface{}{"reference": "Encounter/" + otherEnc.FHIRID}
	env.svc.Create(context.Background(), other, "")

	items, total, err := env.svc.Search(context.Background(),
		fhir.Params{"patient": {"Patient/" + env.patientID.String()}}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected one match, got %d", total)
	}
	if items[0].PatientID != env.patientID {
		t.Errorf("patient = %v", items[0].PatientID)
	}
}

func TestSearch_EmptyMatchIsNotAnError(t *testing.T) {
	env := newTestEnv()
	items, total, err := env.svc.Search(context.Background(),
		fhir.Params{"patient": {"Patient/" + uuid.New().String()}}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("expected empty result, got %d", total)
	}
}

func TestHistory_TracksWrites(t *testing.T) {
	env := newTestEnv()
	created, _ := env.svc.Create(context.Background(), env.resource(), "user-1")

	resource := map[string]interface{}{"id": created.FHIRID, "lotNumber": "NEW-LOT"}
	env.svc.Update(context.Background(), created.FHIRID, resource, "user-2")

	_, revisions, err := env.svc.History(context.Background(), created.FHIRID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revisions))
	}
	if revisions[0].Kind != provenance.EventCreate || revisions[1].Kind != provenance.EventUpdate {
		t.Errorf("revisions out of order")
	}

	_, again, _ := env.svc.History(context.Background(), created.FHIRID)
	for i := range revisions {
		if revisions[i].ID != again[i].ID {
			t.Errorf("revision %d id changed between rebuilds", i)
		}
	}
}
