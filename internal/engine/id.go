package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ErrMalformedIdentifier indicates a textual identifier that is not valid
// hexadecimal or does not fit in 128 bits.
var ErrMalformedIdentifier = errors.New("malformed 128-bit identifier")

// ID is the engine's opaque 128-bit identifier. The metadata store and API
// payloads carry it as a lowercase hex string without leading zeros.
type ID struct {
	Hi uint64
	Lo uint64
}

// NewID returns a fresh random identifier.
func NewID() ID {
	u := uuid.New()
	return ID{
		Hi: binary.BigEndian.Uint64(u[0:8]),
		Lo: binary.BigEndian.Uint64(u[8:16]),
	}
}

// IsZero reports whether the identifier is the zero value, which the engine
// rejects as an event id.
func (id ID) IsZero() bool {
	return id.Hi == 0 && id.Lo == 0
}

// Hex encodes the identifier as lowercase hexadecimal with no padding beyond
// its natural width.
func (id ID) Hex() string {
	if id.Hi == 0 {
		return strconv.FormatUint(id.Lo, 16)
	}
	return fmt.Sprintf("%x%016x", id.Hi, id.Lo)
}

// String implements fmt.Stringer for log output.
func (id ID) String() string { return id.Hex() }

// ParseHex decodes a hexadecimal identifier. It fails with
// ErrMalformedIdentifier when the input is empty, not valid hexadecimal, or
// wider than 128 bits. ParseHex(id.Hex()) round-trips for every id.
func ParseHex(s string) (ID, error) {
	if s == "" || len(s) > 32 {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	if len(s) <= 16 {
		lo, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return ID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
		}
		return ID{Lo: lo}, nil
	}
	hi, err := strconv.ParseUint(s[:len(s)-16], 16, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	lo, err := strconv.ParseUint(s[len(s)-16:], 16, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	return ID{Hi: hi, Lo: lo}, nil
}

// MarshalText encodes the identifier as its hex form for JSON payloads and
// cache entries.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText decodes a hex identifier.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseHex(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Bytes returns the big-endian byte representation used by engine clients.
func (id ID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.Hi)
	binary.BigEndian.PutUint64(b[8:16], id.Lo)
	return b
}

// IDFromBytes rebuilds an identifier from its big-endian byte representation.
func IDFromBytes(b [16]byte) ID {
	return ID{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
}
