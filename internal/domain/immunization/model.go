package immunization

import (
	"time"

	"github.com/google/uuid"

	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// Immunization is the resource view assembled from an obs group. It has no
// table of its own: GroupID points at the obs group that backs it, and the
// FHIR id is the group's fhir_id.
type Immunization struct {
	FHIRID           string     `json:"fhir_id"`
	GroupID          uuid.UUID  `json:"group_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	EncounterID      uuid.UUID  `json:"encounter_id"`
	PerformerID      uuid.UUID  `json:"performer_id"`
	VaccineConceptID uuid.UUID  `json:"vaccine_concept_id"`
	OccurrenceDate   *time.Time `json:"occurrence_date,omitempty"`
	DoseNumber       *int       `json:"dose_number,omitempty"`
	Manufacturer     *string    `json:"manufacturer,omitempty"`
	LotNumber        *string    `json:"lot_number,omitempty"`
	ExpirationDate   *time.Time `json:"expiration_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (im *Immunization) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Immunization",
		"id":           im.FHIRID,
		"status":       "completed",
		"vaccineCode": fhir.CodeableConcept{
			Coding: []fhir.Coding{{Code: im.VaccineConceptID.String()}},
		},
		"patient":       fhir.Reference{Reference: fhir.FormatReference("Patient", im.PatientID.String())},
		"encounter":     fhir.Reference{Reference: fhir.FormatReference("Encounter", im.EncounterID.String())},
		"primarySource": true,
		"meta": fhir.Meta{
			LastUpdated: im.UpdatedAt,
		},
	}
	if im.OccurrenceDate != nil {
		result["occurrenceDateTime"] = im.OccurrenceDate.UTC().Format(time.RFC3339)
	}
	if im.PerformerID != uuid.Nil {
		result["performer"] = []map[string]interface{}{
			{"actor": fhir.Reference{Reference: fhir.FormatReference("Practitioner", im.PerformerID.String())}},
		}
	}
	if im.DoseNumber != nil {
		result["protocolApplied"] = []map[string]interface{}{
			{"doseNumberPositiveInt": *im.DoseNumber},
		}
	}
	if im.Manufacturer != nil {
		result["manufacturer"] = fhir.Reference{Display: *im.Manufacturer}
	}
	if im.LotNumber != nil {
		result["lotNumber"] = *im.LotNumber
	}
	if im.ExpirationDate != nil {
		result["expirationDate"] = im.ExpirationDate.Format("2006-01-02")
	}
	return result
}
