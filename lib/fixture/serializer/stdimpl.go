package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/jmendel/idb/lib/fixture"
)

// The json and gob encodings delegate entirely to the standard library
// codecs; only the binary format (binaryImpl.go) carries hand-written
// encoding logic.

// NewJSONSerializer creates a serializer producing indented, hand-editable
// json, the default encoding for fixture files kept in a repository.
func NewJSONSerializer() IFixtureSerializer { return jsonSerializerImpl{} }

// NewGOBSerializer creates a serializer using Go's gob stream format.
func NewGOBSerializer() IFixtureSerializer { return gobSerializerImpl{} }

type jsonSerializerImpl struct{}

func (jsonSerializerImpl) Serialize(fx fixture.Fixture) ([]byte, error) {
	return json.MarshalIndent(fx, "", "  ")
}

func (jsonSerializerImpl) Deserialize(b []byte, fx *fixture.Fixture) error {
	return json.Unmarshal(b, fx)
}

type gobSerializerImpl struct{}

func (gobSerializerImpl) Serialize(fx fixture.Fixture) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(fx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobSerializerImpl) Deserialize(b []byte, fx *fixture.Fixture) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(fx)
}
