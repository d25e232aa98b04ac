package serializer

import (
	"fmt"

	"github.com/jmendel/idb/lib/fixture"
)

// IFixtureSerializer is the interface for all fixture serializers.
type IFixtureSerializer interface {
	// Serialize serializes a Fixture into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(fx fixture.Fixture) ([]byte, error)
	// Deserialize deserializes a byte array into a Fixture
	// It takes a byte array and a pointer to a Fixture as parameters
	// It returns an error if any
	Deserialize(b []byte, fx *fixture.Fixture) error
}

// New returns the serializer implementation with the given name
// (json, gob or binary).
func New(name string) (IFixtureSerializer, error) {
	switch name {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q (must be one of json, gob, binary)", name)
	}
}
