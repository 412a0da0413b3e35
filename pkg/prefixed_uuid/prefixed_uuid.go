// Package prefixed_uuid provides UUIDs tagged with the platform they were
// issued for, e.g. "telegram-<uuid>" for a correlation ID assigned to a
// Telegram message.
package prefixed_uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PrefixedUUID represents a UUID with a prefix string.
type PrefixedUUID struct {
	Prefix string
	UUID   uuid.UUID
}

// New creates a new PrefixedUUID with the given prefix and a generated UUID.
// The prefix is normalised so that String and FromString round-trip.
func New(prefix string) PrefixedUUID {
	return PrefixedUUID{
		Prefix: normalisePrefix(prefix),
		UUID:   uuid.New(),
	}
}

// NewCorrelationID returns a fresh correlation ID string for a message received
// on the given platform.
func NewCorrelationID(platform string) string {
	return New(platform).String()
}

// HasPrefix reports whether p was issued for the given prefix.
func (p PrefixedUUID) HasPrefix(prefix string) bool {
	return p.Prefix == normalisePrefix(prefix)
}

// normalisePrefix lowercases the prefix and replaces dashes and spaces, since
// FromString splits on the first dash.
func normalisePrefix(prefix string) string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	return strings.NewReplacer("-", "_", " ", "_").Replace(prefix)
}

// FromString parses a prefixed UUID string in the format "prefix-uuid".
func FromString(s string) (PrefixedUUID, error) {
	prefix, rest, ok := strings.Cut(s, "-")
	if !ok || prefix == "" {
		return PrefixedUUID{}, fmt.Errorf("invalid prefixed UUID format: %s", s)
	}

	parsed, err := uuid.Parse(rest)
	if err != nil {
		return PrefixedUUID{}, fmt.Errorf("invalid UUID: %w", err)
	}

	return PrefixedUUID{Prefix: prefix, UUID: parsed}, nil
}

// String returns the prefixed UUID in the format "prefix-uuid".
func (p PrefixedUUID) String() string {
	return p.Prefix + "-" + p.UUID.String()
}
