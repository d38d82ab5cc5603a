package provenance

import (
	"context"

	"github.com/google/uuid"
)

// AuditLog records and replays entity events. EventsFor returns the events
// oldest first; an entity nothing ever touched yields an empty slice.
type AuditLog interface {
	Record(ctx context.Context, ev Event) error
	EventsFor(ctx context.Context, entityID uuid.UUID) ([]Event, error)
}
