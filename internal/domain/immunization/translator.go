package immunization

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/fhir-bridge/internal/config"
	"github.com/medrec/fhir-bridge/internal/domain/observation"
	"github.com/medrec/fhir-bridge/internal/domain/terminology"
	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// Slot positions within the configured member list. The list order is part
// of the deployment contract: position 0 holds the vaccine, position 1 the
// administered date, and so on.
const (
	slotVaccine = iota
	slotDate
	slotSequence
	slotManufacturer
	slotLot
	slotExpiration
	slotCount
)

// Translator moves immunizations between their FHIR shape and the obs group
// that stores them.
type Translator struct {
	codec    *observation.Codec
	resolver *terminology.Resolver
	cfg      *config.Config
}

func NewTranslator(codec *observation.Codec, resolver *terminology.Resolver, cfg *config.Config) *Translator {
	return &Translator{codec: codec, resolver: resolver, cfg: cfg}
}

// Schema builds the group schema from configuration. Missing or malformed
// settings surface here, at first use, naming the offending key.
func (t *Translator) Schema() (observation.GroupSchema, error) {
	grouping := t.cfg.ImmunizationGroupingConcept
	if grouping == "" {
		return observation.GroupSchema{}, fhir.NewConfiguration(
			"missing required setting %s", config.ImmunizationGroupingConceptKey)
	}
	members := t.cfg.MemberConceptList()
	if len(members) != slotCount {
		return observation.GroupSchema{}, fhir.NewConfiguration(
			"%s must list exactly %d reference terms, found %d",
			config.ImmunizationMemberConceptsKey, slotCount, len(members))
	}
	return observation.GroupSchema{Grouping: grouping, Members: members}, nil
}

// FromObs decodes a stored group into the resource view. The administering
// provider comes from the owning encounter's participants.
func (t *Translator) FromObs(ctx context.Context, group *observation.Obs, enc *observation.Encounter) (*Immunization, error) {
	schema, err := t.Schema()
	if err != nil {
		return nil, err
	}
	slots, err := t.codec.Decode(ctx, schema, group)
	if err != nil {
		return nil, err
	}
	performer, err := t.codec.AdministeringProvider(group, enc)
	if err != nil {
		return nil, err
	}

	im := &Immunization{
		FHIRID:      group.FHIRID,
		GroupID:     group.ID,
		PatientID:   group.PersonID,
		EncounterID: group.EncounterID,
		PerformerID: performer,
		CreatedAt:   group.CreatedAt,
		UpdatedAt:   group.UpdatedAt,
	}

	if slot := slots[schema.Members[slotVaccine]]; slot != nil && slot.ValueConceptID != nil {
		im.VaccineConceptID = *slot.ValueConceptID
	}
	if slot := slots[schema.Members[slotDate]]; slot != nil && slot.ValueDatetime != nil {
		im.OccurrenceDate = slot.ValueDatetime
	}
	if slot := slots[schema.Members[slotSequence]]; slot != nil && slot.ValueNumeric != nil {
		n := int(*slot.ValueNumeric)
		im.DoseNumber = &n
	}
	if slot := slots[schema.Members[slotManufacturer]]; slot != nil && slot.ValueText != nil {
		im.Manufacturer = slot.ValueText
	}
	if slot := slots[schema.Members[slotLot]]; slot != nil && slot.ValueText != nil {
		im.LotNumber = slot.ValueText
	}
	if slot := slots[schema.Members[slotExpiration]]; slot != nil && slot.ValueDatetime != nil {
		im.ExpirationDate = slot.ValueDatetime
	}
	return im, nil
}

// parsed carries the client-supplied fields of an incoming resource. Pointer
// fields distinguish "absent" from "zero" so updates merge.
type parsed struct {
	id             string
	patientID      uuid.UUID
	encounterRef   string
	vaccineConcept *uuid.UUID
	occurrence     *time.Time
	doseNumber     *int
	manufacturer   *string
	lotNumber      *string
	expiration     *time.Time
}

// FromResource validates and extracts an incoming Immunization body. The
// vaccine coding resolves through the terminology dictionary when it names a
// system, and is taken as a concept id otherwise.
func (t *Translator) FromResource(ctx context.Context, resource map[string]interface{}) (*parsed, error) {
	p := &parsed{}

	if raw, present := resource["id"]; present {
		id, ok := raw.(string)
		if !ok {
			return nil, fhir.NewValidation("id element must be a string")
		}
		p.id = id
	}

	if ref, ok := referenceIn(resource, "patient"); ok {
		pid, err := uuid.Parse(stripReferenceType(ref))
		if err != nil {
			return nil, fhir.NewValidation("invalid patient reference %q", ref)
		}
		p.patientID = pid
	}
	if ref, ok := referenceIn(resource, "encounter"); ok {
		p.encounterRef = stripReferenceType(ref)
	}

	if vc, ok := resource["vaccineCode"].(map[string]interface{}); ok {
		conceptID, err := t.resolveCoding(ctx, vc)
		if err != nil {
			return nil, err
		}
		p.vaccineConcept = &conceptID
	}

	if v, ok := resource["occurrenceDateTime"].(string); ok {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fhir.NewValidation("invalid occurrenceDateTime %q", v)
		}
		p.occurrence = &ts
	}

	if protocols, ok := resource["protocolApplied"].([]interface{}); ok && len(protocols) > 0 {
		if protocol, ok := protocols[0].(map[string]interface{}); ok {
			if v, ok := protocol["doseNumberPositiveInt"].(float64); ok {
				n := int(v)
				p.doseNumber = &n
			}
		}
	}

	if m, ok := resource["manufacturer"].(map[string]interface{}); ok {
		if v, ok := m["display"].(string); ok {
			p.manufacturer = &v
		}
	}
	if v, ok := resource["lotNumber"].(string); ok {
		p.lotNumber = &v
	}
	if v, ok := resource["expirationDate"].(string); ok {
		ts, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, fhir.NewValidation("invalid expirationDate %q", v)
		}
		p.expiration = &ts
	}
	return p, nil
}

func (t *Translator) resolveCoding(ctx context.Context, cc map[string]interface{}) (uuid.UUID, error) {
	codings, ok := cc["coding"].([]interface{})
	if !ok || len(codings) == 0 {
		return uuid.Nil, fhir.NewValidation("vaccineCode must carry at least one coding")
	}
	coding, ok := codings[0].(map[string]interface{})
	if !ok {
		return uuid.Nil, fhir.NewValidation("vaccineCode coding must be an object")
	}
	code, _ := coding["code"].(string)
	system, _ := coding["system"].(string)

	if system != "" {
		concept, err := t.resolver.Resolve(ctx, system+":"+code)
		if err != nil {
			return uuid.Nil, err
		}
		return concept.ID, nil
	}
	conceptID, err := uuid.Parse(code)
	if err != nil {
		return uuid.Nil, fhir.NewValidation("vaccineCode %q is neither a mapped code nor a concept id", code)
	}
	return conceptID, nil
}

// Apply writes the supplied fields into the group's slots. Absent fields
// leave their slots alone.
func (t *Translator) Apply(ctx context.Context, p *parsed, group *observation.Obs) error {
	schema, err := t.Schema()
	if err != nil {
		return err
	}
	slots, err := t.codec.Decode(ctx, schema, group)
	if err != nil {
		return err
	}

	if p.vaccineConcept != nil {
		if slot := slots[schema.Members[slotVaccine]]; slot != nil {
			slot.ClearValue()
			slot.ValueConceptID = p.vaccineConcept
		}
	}
	if p.occurrence != nil {
		if slot := slots[schema.Members[slotDate]]; slot != nil {
			slot.ClearValue()
			slot.ValueDatetime = p.occurrence
		}
	}
	if p.doseNumber != nil {
		if slot := slots[schema.Members[slotSequence]]; slot != nil {
			v := float64(*p.doseNumber)
			slot.ClearValue()
			slot.ValueNumeric = &v
		}
	}
	if p.manufacturer != nil {
		if slot := slots[schema.Members[slotManufacturer]]; slot != nil {
			slot.ClearValue()
			slot.ValueText = p.manufacturer
		}
	}
	if p.lotNumber != nil {
		if slot := slots[schema.Members[slotLot]]; slot != nil {
			slot.ClearValue()
			slot.ValueText = p.lotNumber
		}
	}
	if p.expiration != nil {
		if slot := slots[schema.Members[slotExpiration]]; slot != nil {
			slot.ClearValue()
			slot.ValueDatetime = p.expiration
		}
	}
	return nil
}

func referenceIn(resource map[string]interface{}, key string) (string, bool) {
	element, ok := resource[key].(map[string]interface{})
	if !ok {
		return "", false
	}
	ref, ok := element["reference"].(string)
	return ref, ok && ref != ""
}

// stripReferenceType turns "Patient/abc" into "abc"; bare ids pass through.
func stripReferenceType(ref string) string {
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}
