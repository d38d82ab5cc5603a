package provenance

import (
	"context"

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

type auditLogPG struct{ pool *pgxpool.Pool }

func NewAuditLogPG(pool *pgxpool.Pool) AuditLog {
	return &auditLogPG{pool: pool}
}

func (r *auditLogPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *auditLogPG) Record(ctx context.Context, ev Event) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_event (entity_id, kind, occurred_at, agent)
		VALUES ($1, $2, $3, $4)`,
		ev.EntityID, ev.Kind, ev.At, ev.Agent)
	if err != nil {
		return fhir.NewStore("record audit event", err)
	}
	return nil
}

// EventsFor orders by the serial primary key so that same-instant events
// keep their insertion order.
func (r *auditLogPG) EventsFor(ctx context.Context, entityID uuid.UUID) ([]Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT entity_id, kind, occurred_at, agent
		FROM audit_event WHERE entity_id = $1 ORDER BY id`,
		entityID)
	if err != nil {
		return nil, fhir.NewStore("load audit events", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.EntityID, &ev.Kind, &ev.At, &ev.Agent); err != nil {
			return nil, fhir.NewStore("scan audit event", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
