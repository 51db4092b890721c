package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding, so that a
// module's wire form can be content-addressed.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalModule serializes a Module to CBOR bytes.
func MarshalModule(m *Module) ([]byte, error) {
	return cborEncMode.Marshal(m)
}

// UnmarshalModule deserializes a Module from CBOR bytes.
func UnmarshalModule(data []byte) (*Module, error) {
	var m Module
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal module: %w", err)
	}
	return &m, nil
}
