package surql

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EdgeIDGenerator produces the id segment of a new edge record.
type EdgeIDGenerator interface {
	NextEdgeID() (string, error)
}

// StoreGenerated lets the store assign the id by calling one of its id functions.
type StoreGenerated string

const (
	StoreULID StoreGenerated = "ulid()"
	StoreUUID StoreGenerated = "uuid()"
	StoreRand StoreGenerated = "rand()"
)

func (s StoreGenerated) NextEdgeID() (string, error) {
	return string(s), nil
}

// ClientUUID generates a time-ordered UUID on the client, so the id of the edge
// is known before the statement runs.
type ClientUUID struct {
	// NewUUID overrides the generator; defaults to uuid.NewV7.
	NewUUID func() (uuid.UUID, error)
}

func (c ClientUUID) NextEdgeID() (string, error) {
	gen := c.NewUUID
	if gen == nil {
		gen = uuid.NewV7
	}
	id, err := gen()
	if err != nil {
		return "", fmt.Errorf("generate edge id: %w", err)
	}
	return string(keyOpen) + id.String() + string(keyClose), nil
}

// ParseEdgeIDStrategy maps a configuration string to a generator.
// Empty selects StoreULID.
func ParseEdgeIDStrategy(s string) (EdgeIDGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ulid":
		return StoreULID, nil
	case "uuid":
		return StoreUUID, nil
	case "rand":
		return StoreRand, nil
	case "client", "client_uuid", "uuidv7":
		return ClientUUID{}, nil
	}
	return nil, fmt.Errorf("unknown edge id strategy %q (expected ulid, uuid, rand or client)", s)
}
