package provenance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Reconstructor derives revision history from the audit log. History is a
// read-model: nothing here writes, and replaying the same log always
// produces the same revisions.
type Reconstructor struct {
	log AuditLog
}

func NewReconstructor(log AuditLog) *Reconstructor {
	return &Reconstructor{log: log}
}

// HistoryFor returns the entity's revisions oldest first. An entity with no
// recorded events has an empty history, which is a valid answer rather than
// an error; callers decide whether the entity itself exists.
func (r *Reconstructor) HistoryFor(ctx context.Context, entityID uuid.UUID) ([]Revision, error) {
	events, err := r.log.EventsFor(ctx, entityID)
	if err != nil {
		return nil, err
	}

	revisions := make([]Revision, len(events))
	for i, ev := range events {
		revisions[i] = Revision{
			ID:    RevisionID(entityID, i),
			Kind:  ev.Kind,
			At:    ev.At,
			Agent: ev.Agent,
		}
	}
	return revisions, nil
}

// RevisionID derives a stable id from the entity and the event ordinal.
// Name-based UUIDs keep history reconstruction idempotent: the same log
// position yields the same id on every rebuild.
func RevisionID(entityID uuid.UUID, ordinal int) uuid.UUID {
	return uuid.NewSHA1(entityID, []byte(fmt.Sprintf("revision-%d", ordinal)))
}

// HistoryResources renders revisions as Provenance resources ready for a
// history bundle.
func HistoryResources(revisions []Revision, targetType, targetID string) []interface{} {
	resources := make([]interface{}, len(revisions))
	for i := range revisions {
		resources[i] = revisions[i].ToFHIR(targetType, targetID)
	}
	return resources
}
