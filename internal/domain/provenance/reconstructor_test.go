package provenance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockAuditLog struct {
	events map[uuid.UUID][]Event
}

func newMockAuditLog() *mockAuditLog {
	return &mockAuditLog{events: make(map[uuid.UUID][]Event)}
}

func (m *mockAuditLog) Record(_ context.Context, ev Event) error {
	m.events[ev.EntityID] = append(m.events[ev.EntityID], ev)
	return nil
}

func (m *mockAuditLog) EventsFor(_ context.Context, entityID uuid.UUID) ([]Event, error) {
	return m.events[entityID], nil
}

func TestHistoryFor_OldestFirst(t *testing.T) {
	log := newMockAuditLog()
	entityID := uuid.New()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	log.Record(context.Background(), Event{EntityID: entityID, Kind: EventCreate, At: base, Agent: "u1"})
	log.Record(context.Background(), Event{EntityID: entityID, Kind: EventUpdate, At: base.Add(time.Hour), Agent: "u2"})
	log.Record(context.Background(), Event{EntityID: entityID, Kind: EventUpdate, At: base.Add(2 * time.Hour), Agent: "u1"})

	revisions, err := NewReconstructor(log).HistoryFor(context.Background(), entityID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(revisions) != 3 {
		t.Fatalf("expected 3 revisions, got %d", len(revisions))
	}
	if revisions[0].Kind != EventCreate {
		t.Errorf("first revision should be the create, got %s", revisions[0].Kind)
	}
	for i := 1; i < len(revisions); i++ {
		if revisions[i].At.Before(revisions[i-1].At) {
			t.Errorf("revisions out of order at %d", i)
		}
	}
}

func TestHistoryFor_EmptyLog(t *testing.T) {
	log := newMockAuditLog()
	revisions, err := NewReconstructor(log).HistoryFor(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("an empty log is not an error: %v", err)
	}
	if len(revisions) != 0 {
		t.Errorf("expected empty history, got %d revisions", len(revisions))
	}
}

func TestHistoryFor_IdempotentIDs(t *testing.T) {
	log := newMockAuditLog()
	entityID := uuid.New()
	log.Record(context.Background(), Event{EntityID: entityID, Kind: EventCreate, At: time.Now()})
	log.Record(context.Background(), Event{EntityID: entityID, Kind: EventUpdate, At: time.Now()})

	rec := NewReconstructor(log)
	first, _ := rec.HistoryFor(context.Background(), entityID)
	second, _ := rec.HistoryFor(context.Background(), entityID)

	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("revision %d id changed between rebuilds: %v vs %v", i, first[i].ID, second[i].ID)
		}
	}
}

func TestRevisionID_DistinctPerOrdinal(t *testing.T) {
	entityID := uuid.New()
	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 10; i++ {
		id := RevisionID(entityID, i)
		if seen[id] {
			t.Fatalf("duplicate revision id at ordinal %d", i)
		}
		seen[id] = true
	}
	if RevisionID(entityID, 0) == RevisionID(uuid.New(), 0) {
		t.Error("revision ids should differ across entities")
	}
}

func TestRevision_ToFHIR(t *testing.T) {
	rev := Revision{
		ID:    uuid.New(),
		Kind:  EventUpdate,
		At:    time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
		Agent: "4f8c1d0e-0000-0000-0000-000000000001",
	}
	resource := rev.ToFHIR("Practitioner", "abc-123")

	if resource["resourceType"] != "Provenance" {
		t.Errorf("resourceType = %v", resource["resourceType"])
	}
	if resource["recorded"] != "2026-02-01T08:00:00Z" {
		t.Errorf("recorded = %v", resource["recorded"])
	}
	if _, ok := resource["agent"]; !ok {
		t.Error("expected agent element")
	}
}

func TestRevision_ToFHIR_NoAgent(t *testing.T) {
	rev := Revision{ID: uuid.New(), Kind: EventCreate, At: time.Now()}
	resource := rev.ToFHIR("Practitioner", "abc-123")
	if _, ok := resource["agent"]; ok {
		t.Error("agent element should be omitted when unattributed")
	}
}
