package practitioner

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

// Practitioner maps to the practitioner table (FHIR Practitioner resource).
// Soft deletes set voided; voided rows never leave the store through a read.
type Practitioner struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	FHIRID            string     `db:"fhir_id" json:"fhir_id"`
	Identifier        string     `db:"identifier" json:"identifier"`
	GivenName         *string    `db:"given_name" json:"given_name,omitempty"`
	MiddleName        *string    `db:"middle_name" json:"middle_name,omitempty"`
	FamilyName        *string    `db:"family_name" json:"family_name,omitempty"`
	Gender            *string    `db:"gender" json:"gender,omitempty"`
	BirthDate         *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	AddressCity       *string    `db:"address_city" json:"address_city,omitempty"`
	AddressState      *string    `db:"address_state" json:"address_state,omitempty"`
	AddressPostalCode *string    `db:"address_postal_code" json:"address_postal_code,omitempty"`
	AddressCountry    *string    `db:"address_country" json:"address_country,omitempty"`
	Voided            bool       `db:"voided" json:"voided"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Practitioner) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Practitioner",
		"id":           p.FHIRID,
		"active":       !p.Voided,
		"meta": fhir.Meta{
			LastUpdated: p.UpdatedAt,
		},
	}
	if p.Identifier != "" {
		result["identifier"] = []fhir.Identifier{{Use: "official", Value: p.Identifier}}
	}

	name := fhir.HumanName{}
	if p.FamilyName != nil {
		name.Family = *p.FamilyName
	}
	if p.GivenName != nil {
		name.Given = append(name.Given, *p.GivenName)
	}
	if p.MiddleName != nil {
		name.Given = append(name.Given, *p.MiddleName)
	}
	if name.Family != "" || len(name.Given) > 0 {
		result["name"] = []fhir.HumanName{name}
	}

	if p.Gender != nil {
		result["gender"] = *p.Gender
	}
	if p.BirthDate != nil {
		result["birthDate"] = p.BirthDate.Format("2006-01-02")
	}

	addr := fhir.Address{}
	if p.AddressCity != nil {
		addr.City = *p.AddressCity
	}
	if p.AddressState != nil {
		addr.State = *p.AddressState
	}
	if p.AddressPostalCode != nil {
		addr.PostalCode = *p.AddressPostalCode
	}
	if p.AddressCountry != nil {
		addr.Country = *p.AddressCountry
	}
	if !reflect.DeepEqual(addr, fhir.Address{}) {
		result["address"] = []fhir.Address{addr}
	}
	return result
}

// applyResource copies the fields present in the incoming resource onto p.
// Absent elements leave the target untouched, so updates merge rather than
// blank out.
func applyResource(resource map[string]interface{}, p *Practitioner) error {
	if identifiers, ok := resource["identifier"].([]interface{}); ok && len(identifiers) > 0 {
		if ident, ok := identifiers[0].(map[string]interface{}); ok {
			if v, ok := ident["value"].(string); ok {
				p.Identifier = v
			}
		}
	}

	if names, ok := resource["name"].([]interface{}); ok && len(names) > 0 {
		name, ok := names[0].(map[string]interface{})
		if !ok {
			return fhir.NewValidation("name element must be an object")
		}
		if v, ok := name["family"].(string); ok {
			p.FamilyName = &v
		}
		if given, ok := name["given"].([]interface{}); ok {
			if len(given) > 0 {
				if v, ok := given[0].(string); ok {
					p.GivenName = &v
				}
			}
			if len(given) > 1 {
				if v, ok := given[1].(string); ok {
					p.MiddleName = &v
				}
			}
		}
	}

	if v, ok := resource["gender"].(string); ok {
		p.Gender = &v
	}
	if v, ok := resource["birthDate"].(string); ok {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return fhir.NewValidation("invalid birthDate %q", v)
		}
		p.BirthDate = &t
	}

	if addresses, ok := resource["address"].([]interface{}); ok && len(addresses) > 0 {
		addr, ok := addresses[0].(map[string]interface{})
		if !ok {
			return fhir.NewValidation("address element must be an object")
		}
		if v, ok := addr["city"].(string); ok {
			p.AddressCity = &v
		}
		if v, ok := addr["state"].(string); ok {
			p.AddressState = &v
		}
		if v, ok := addr["postalCode"].(string); ok {
			p.AddressPostalCode = &v
		}
		if v, ok := addr["country"].(string); ok {
			p.AddressCountry = &v
		}
	}
	return nil
}

// resourceID pulls the logical id out of an incoming resource body.
func resourceID(resource map[string]interface{}) (string, error) {
	raw, present := resource["id"]
	if !present {
		return "", nil
	}
	id, ok := raw.(string)
	if !ok {
		return "", fhir.NewValidation("id element must be a string, got %s", fmt.Sprintf("%T", raw))
	}
	return id, nil
}
