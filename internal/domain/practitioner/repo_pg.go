package practitioner

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medrec/fhir-bridge/internal/platform/db"
	"github.com/medrec/fhir-bridge/internal/platform/fhir"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, fhir_id, identifier, given_name, middle_name, family_name,
	gender, birth_date, address_city, address_state, address_postal_code,
	address_country, voided, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.FHIRID, &p.Identifier, &p.GivenName, &p.MiddleName, &p.FamilyName,
		&p.Gender, &p.BirthDate, &p.AddressCity, &p.AddressState, &p.AddressPostalCode,
		&p.AddressCountry, &p.Voided, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Practitioner) error {
	p.ID = uuid.New()
	if p.FHIRID == "" {
		p.FHIRID = p.ID.String()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO practitioner (id, fhir_id, identifier, given_name, middle_name,
			family_name, gender, birth_date, address_city, address_state,
			address_postal_code, address_country)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.FHIRID, p.Identifier, p.GivenName, p.MiddleName,
		p.FamilyName, p.Gender, p.BirthDate, p.AddressCity, p.AddressState,
		p.AddressPostalCode, p.AddressCountry)
	if err != nil {
		return fhir.NewStore("create practitioner", err)
	}
	return nil
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Practitioner, error) {
	p, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM practitioner WHERE fhir_id = $1 AND voided = FALSE`, fhirID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fhir.NewNotFound("Practitioner", fhirID)
		}
		return nil, fhir.NewStore("get practitioner", err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Practitioner) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE practitioner SET identifier=$2, given_name=$3, middle_name=$4,
			family_name=$5, gender=$6, birth_date=$7, address_city=$8,
			address_state=$9, address_postal_code=$10, address_country=$11,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Identifier, p.GivenName, p.MiddleName,
		p.FamilyName, p.Gender, p.BirthDate, p.AddressCity,
		p.AddressState, p.AddressPostalCode, p.AddressCountry)
	if err != nil {
		return fhir.NewStore("update practitioner", err)
	}
	return nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE practitioner SET voided = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fhir.NewStore("delete practitioner", err)
	}
	return nil
}

var searchParams = map[string]fhir.SearchParamConfig{
	"identifier":         {Type: fhir.SearchParamToken, Column: "identifier"},
	"name":               {Type: fhir.SearchParamString, Columns: []string{"given_name", "middle_name", "family_name"}},
	"given":              {Type: fhir.SearchParamString, Column: "given_name"},
	"family":             {Type: fhir.SearchParamString, Column: "family_name"},
	"gender":             {Type: fhir.SearchParamToken, Column: "gender"},
	"address-city":       {Type: fhir.SearchParamString, Column: "address_city"},
	"address-state":      {Type: fhir.SearchParamString, Column: "address_state"},
	"address-postalcode": {Type: fhir.SearchParamString, Column: "address_postal_code"},
	"address-country":    {Type: fhir.SearchParamString, Column: "address_country"},
	"_id":                {Type: fhir.SearchParamToken, Column: "fhir_id"},
	"_lastUpdated":       {Type: fhir.SearchParamDate, Column: "updated_at"},
}

func (r *repoPG) Search(ctx context.Context, params fhir.Params, limit, offset int) ([]*Practitioner, int, error) {
	qb := fhir.NewSearchQuery("practitioner", cols)
	qb.Add("voided = FALSE")
	if err := qb.ApplyParams(params, searchParams); err != nil {
		return nil, 0, err
	}
	qb.OrderBy("family_name NULLS LAST, given_name NULLS LAST, id")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fhir.NewStore("count practitioners", err)
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fhir.NewStore("search practitioners", err)
	}
	defer rows.Close()

	var items []*Practitioner
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, fhir.NewStore("scan practitioner", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fhir.NewStore("search practitioners", err)
	}
	return items, total, nil
}
