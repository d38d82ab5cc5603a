package provenance

import (
	"time"

	"github.com/google/uuid"

	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// EventKind is the audit log's operation code, matching the HL7
// v3-DataOperation vocabulary.
type EventKind string

const (
	EventCreate EventKind = "CREATE"
	EventUpdate EventKind = "UPDATE"
)

// Event is one recorded touch on an entity. Events are append-only; the log
// is the only source of truth for an entity's history.
type Event struct {
	EntityID uuid.UUID `db:"entity_id" json:"entity_id"`
	Kind     EventKind `db:"kind" json:"kind"`
	At       time.Time `db:"occurred_at" json:"occurred_at"`
	Agent    string    `db:"agent" json:"agent"`
}

// Revision is one step of a reconstructed history. Its ID is derived, not
// stored: rebuilding the same history always yields the same IDs.
type Revision struct {
	ID    uuid.UUID
	Kind  EventKind
	At    time.Time
	Agent string
}

const dataOperationSystem = "http://terminology.hl7.org/CodeSystem/v3-DataOperation"

// ToFHIR renders the revision as a Provenance resource targeting the given
// resource.
func (r *Revision) ToFHIR(targetType, targetID string) map[string]interface{} {
	display := "create"
	if r.Kind == EventUpdate {
		display = "revise"
	}

	result := map[string]interface{}{
		"resourceType": "Provenance",
		"id":           r.ID.String(),
		"target": []fhir.Reference{
			{Reference: fhir.FormatReference(targetType, targetID), Type: targetType},
		},
		"recorded": r.At.UTC().Format(time.RFC3339),
		"activity": fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  dataOperationSystem,
				Code:    string(r.Kind),
				Display: display,
			}},
		},
	}
	if r.Agent != "" {
		result["agent"] = []map[string]interface{}{
			{"who": fhir.Reference{Reference: fhir.FormatReference("Practitioner", r.Agent)}},
		}
	}
	return result
}
