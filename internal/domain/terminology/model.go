package terminology

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Concept is one dictionary entry. Concepts are addressed indirectly through
// reference terms ("<vocabulary>:<code>") so that deployments can swap
// dictionaries without touching code.
type Concept struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Display   string    `db:"display" json:"display"`
	Class     string    `db:"class" json:"class"`
	Datatype  string    `db:"datatype" json:"datatype"`
	Retired   bool      `db:"retired" json:"retired"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SplitTerm splits "CIEL:1421" into ("CIEL", "1421"). Only the first colon
// separates; codes may contain colons.
func SplitTerm(term string) (vocabulary, code string, ok bool) {
	idx := strings.Index(term, ":")
	if idx <= 0 || idx == len(term)-1 {
		return "", "", false
	}
	return term[:idx], term[idx+1:], true
}
