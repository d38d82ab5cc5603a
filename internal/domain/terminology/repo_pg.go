package terminology

import (
	"context"

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

type dictionaryPG struct{ pool *pgxpool.Pool }

func NewDictionaryPG(pool *pgxpool.Pool) Dictionary {
	return &dictionaryPG{pool: pool}
}

func (r *dictionaryPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const conceptCols = `c.id, c.display, c.class, c.datatype, c.retired, c.created_at`

func (r *dictionaryPG) LookupByMapping(ctx context.Context, vocabulary, code string) ([]*Concept, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+conceptCols+`
		FROM concept c
		JOIN concept_reference_map m ON m.concept_id = c.id
		WHERE m.vocabulary = $1 AND m.code = $2 AND c.retired = FALSE
		ORDER BY c.created_at`,
		vocabulary, code)
	if err != nil {
		return nil, fhir.NewStore("lookup concept mapping", err)
	}
	defer rows.Close()

	var concepts []*Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.ID, &c.Display, &c.Class, &c.Datatype, &c.Retired, &c.CreatedAt); err != nil {
			return nil, fhir.NewStore("scan concept", err)
		}
		concepts = append(concepts, &c)
	}
	return concepts, rows.Err()
}
