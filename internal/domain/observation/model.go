package observation

import (
	"time"

	"github.com/google/uuid"
)

// Obs is one observation node. A node is either a leaf carrying exactly one
// typed value or a group carrying members, never both. Groups reference
// their members through GroupID on the member side; loaded groups also hold
// the member slice directly.
type Obs struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	FHIRID         string     `db:"fhir_id" json:"fhir_id"`
	ConceptID      uuid.UUID  `db:"concept_id" json:"concept_id"`
	PersonID       uuid.UUID  `db:"person_id" json:"person_id"`
	EncounterID    uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	GroupID        *uuid.UUID `db:"group_id" json:"group_id,omitempty"`
	ObsDatetime    time.Time  `db:"obs_datetime" json:"obs_datetime"`
	ValueNumeric   *float64   `db:"value_numeric" json:"value_numeric,omitempty"`
	ValueConceptID *uuid.UUID `db:"value_concept_id" json:"value_concept_id,omitempty"`
	ValueText      *string    `db:"value_text" json:"value_text,omitempty"`
	ValueDatetime  *time.Time `db:"value_datetime" json:"value_datetime,omitempty"`
	Voided         bool       `db:"voided" json:"voided"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`

	Members []*Obs `json:"members,omitempty"`
}

// IsGroup reports whether the node carries members rather than a value.
func (o *Obs) IsGroup() bool { return len(o.Members) > 0 }

// HasValue reports whether any of the typed value slots is set.
func (o *Obs) HasValue() bool {
	return o.ValueNumeric != nil || o.ValueConceptID != nil ||
		o.ValueText != nil || o.ValueDatetime != nil
}

// ClearValue empties every typed value slot.
func (o *Obs) ClearValue() {
	o.ValueNumeric = nil
	o.ValueConceptID = nil
	o.ValueText = nil
	o.ValueDatetime = nil
}

// Encounter is the visit an obs group hangs off. Participants carry the
// provider and the role the provider played during the visit.
type Encounter struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	FHIRID       string        `db:"fhir_id" json:"fhir_id"`
	PersonID     uuid.UUID     `db:"person_id" json:"person_id"`
	StartedAt    time.Time     `db:"started_at" json:"started_at"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	Participants []Participant `json:"participants,omitempty"`
}

type Participant struct {
	ProviderID uuid.UUID `db:"provider_id" json:"provider_id"`
	Role       string    `db:"role" json:"role"`
}
