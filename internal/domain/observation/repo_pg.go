package observation

import (
	"context"
	"errors"
	"fmt"

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

// =========== Obs Store ===========

type obsStorePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &obsStorePG{pool: pool}
}

func (r *obsStorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const obsCols = `id, fhir_id, concept_id, person_id, encounter_id, group_id,
	obs_datetime, value_numeric, value_concept_id, value_text, value_datetime,
	voided, created_at, updated_at`

func (r *obsStorePG) scanObs(row pgx.Row) (*Obs, error) {
	var o Obs
	err := row.Scan(&o.ID, &o.FHIRID, &o.ConceptID, &o.PersonID, &o.EncounterID, &o.GroupID,
		&o.ObsDatetime, &o.ValueNumeric, &o.ValueConceptID, &o.ValueText, &o.ValueDatetime,
		&o.Voided, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *obsStorePG) insert(ctx context.Context, o *Obs) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO obs (id, fhir_id, concept_id, person_id, encounter_id, group_id,
			obs_datetime, value_numeric, value_concept_id, value_text, value_datetime)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.FHIRID, o.ConceptID, o.PersonID, o.EncounterID, o.GroupID,
		o.ObsDatetime, o.ValueNumeric, o.ValueConceptID, o.ValueText, o.ValueDatetime)
	return err
}

func (r *obsStorePG) Create(ctx context.Context, group *Obs) error {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.insert(ctx, group); err != nil {
			return err
		}
		for _, m := range group.Members {
			if err := r.insert(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fhir.NewStore("create obs group", err)
	}
	return nil
}

func (r *obsStorePG) GetGroupByFHIRID(ctx context.Context, fhirID string) (*Obs, error) {
	group, err := r.scanObs(r.conn(ctx).QueryRow(ctx,
		`SELECT `+obsCols+` FROM obs WHERE fhir_id = $1 AND voided = FALSE`, fhirID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fhir.NewNotFound("Observation", fhirID)
		}
		return nil, fhir.NewStore("get obs group", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+obsCols+` FROM obs WHERE group_id = $1 AND voided = FALSE ORDER BY created_at, id`,
		group.ID)
	if err != nil {
		return nil, fhir.NewStore("load obs members", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := r.scanObs(rows)
		if err != nil {
			return nil, fhir.NewStore("scan obs member", err)
		}
		group.Members = append(group.Members, m)
	}
	return group, rows.Err()
}

func (r *obsStorePG) Update(ctx context.Context, group *Obs) error {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.updateOne(ctx, group); err != nil {
			return err
		}
		for _, m := range group.Members {
			if err := r.updateOne(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fhir.NewStore("update obs group", err)
	}
	return nil
}

func (r *obsStorePG) updateOne(ctx context.Context, o *Obs) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE obs SET obs_datetime=$2, value_numeric=$3, value_concept_id=$4,
			value_text=$5, value_datetime=$6, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.ObsDatetime, o.ValueNumeric, o.ValueConceptID, o.ValueText, o.ValueDatetime)
	return err
}

// Void soft-deletes the group and its members. Voided nodes stay in the
// table for the audit trail but drop out of every read path.
func (r *obsStorePG) Void(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE obs SET voided = TRUE, updated_at = NOW() WHERE id = $1 OR group_id = $1`, id)
	if err != nil {
		return fhir.NewStore("void obs group", err)
	}
	return nil
}

var groupSearchParams = map[string]fhir.SearchParamConfig{
	"patient":      {Type: fhir.SearchParamReference, Column: "person_id"},
	"date":         {Type: fhir.SearchParamDate, Column: "obs_datetime"},
	"_id":          {Type: fhir.SearchParamToken, Column: "fhir_id"},
	"_lastUpdated": {Type: fhir.SearchParamDate, Column: "updated_at"},
}

func (r *obsStorePG) SearchGroups(ctx context.Context, conceptID uuid.UUID, params fhir.Params, limit, offset int) ([]*Obs, int, error) {
	qb := fhir.NewSearchQuery("obs", obsCols)
	qb.Add("concept_id = $1", conceptID)
	qb.Add("group_id IS NULL")
	qb.Add("voided = FALSE")
	if err := qb.ApplyParams(params, groupSearchParams); err != nil {
		return nil, 0, err
	}
	qb.OrderBy("obs_datetime DESC, id")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fhir.NewStore("count obs groups", err)
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fhir.NewStore("search obs groups", err)
	}
	defer rows.Close()

	var groups []*Obs
	for rows.Next() {
		g, err := r.scanObs(rows)
		if err != nil {
			return nil, 0, fhir.NewStore("scan obs group", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fhir.NewStore("search obs groups", err)
	}

	// Search returns shallow rows; members are loaded per group so each
	// result decodes the same way a direct read would.
	for _, g := range groups {
		full, err := r.GetGroupByFHIRID(ctx, g.FHIRID)
		if err != nil {
			return nil, 0, err
		}
		g.Members = full.Members
	}
	return groups, total, nil
}

// =========== Encounter Store ===========

type encounterStorePG struct{ pool *pgxpool.Pool }

func NewEncounterStorePG(pool *pgxpool.Pool) EncounterStore {
	return &encounterStorePG{pool: pool}
}

func (r *encounterStorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const encounterCols = `id, fhir_id, person_id, started_at, created_at`

func (r *encounterStorePG) get(ctx context.Context, where string, arg interface{}) (*Encounter, error) {
	var e Encounter
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+encounterCols+` FROM encounter WHERE `+where, arg).
		Scan(&e.ID, &e.FHIRID, &e.PersonID, &e.StartedAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fhir.NewNotFound("Encounter", fmt.Sprintf("%v", arg))
		}
		return nil, fhir.NewStore("get encounter", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT provider_id, role FROM encounter_provider WHERE encounter_id = $1 ORDER BY provider_id`,
		e.ID)
	if err != nil {
		return nil, fhir.NewStore("load encounter participants", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ProviderID, &p.Role); err != nil {
			return nil, fhir.NewStore("scan encounter participant", err)
		}
		e.Participants = append(e.Participants, p)
	}
	return &e, rows.Err()
}

func (r *encounterStorePG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *encounterStorePG) GetByFHIRID(ctx context.Context, fhirID string) (*Encounter, error) {
	return r.get(ctx, "fhir_id = $1", fhirID)
}
