package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID identifies an event by its content.
type ID = uuid.UUID

// idNamespace scopes event IDs so they never collide with other UUIDv5 users.
var idNamespace = uuid.MustParse("6f3c1f7e-8d0a-5b7e-9a51-0c8e2d4b7a10")

// deriveID hashes the immutable fields of e. End is deliberately left out.
func deriveID(e Event) ID {
	var b strings.Builder
	b.WriteString(e.Title)
	b.WriteByte(0x1f)
	b.WriteString(e.Location)
	b.WriteByte(0x1f)
	b.WriteString(e.Start.UTC().Format(time.RFC3339Nano))
	b.WriteByte(0x1f)
	if e.Recurrence != nil {
		b.WriteString(e.Recurrence.String())
	}
	return uuid.NewSHA1(idNamespace, []byte(b.String()))
}

// ParseID parses the canonical UUID form of an event ID.
func ParseID(s string) (ID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, &ValidationError{Field: "id", Reason: err.Error()}
	}
	return id, nil
}

// ShortID is the first eight hex digits of id, as printed by the CLI.
func ShortID(id ID) string {
	return id.String()[:8]
}
