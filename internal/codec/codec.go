// Package codec is the single cbor encoding used on the wire and on disk.
//
// Encoding is deterministic (core deterministic encoding, sorted map keys) so
// that encoded headers can be used as associated data. Times keep nanosecond
// precision.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("codec: cbor encoder options: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 32,
	}
	if decMode, err = decOpts.DecMode(); err != nil {
		panic(fmt.Sprintf("codec: cbor decoder options: %v", err))
	}
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// MustMarshal encodes v and panics on failure. It is only meant for values
// whose encoding cannot fail, such as fixed structs of plain fields.
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("codec: marshal %T: %v", v, err))
	}
	return b
}
