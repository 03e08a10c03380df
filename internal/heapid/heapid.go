// Package heapid implements HeapID: a 64-bit opaque row identifier with a
// canonical 16-hex-digit text form and a sharded directory path, grounded
// on gertrude/lib/types/heap_id.py. Generation samples 16 hex digits from
// the restricted alphabet "123456789ABCDEF" (no '0', matching the
// original so that generated ids never collide with a hand-picked
// all-zero id) and parses the result as a base-16 uint64.
package heapid

import (
	"crypto/rand"
	"fmt"
	"path"
	"strconv"

	"github.com/pkg/errors"
)

const alphabet = "123456789ABCDEF"

// ID is a 64-bit opaque row identifier.
type ID uint64

// Generate samples a new random ID from the fixed alphabet.
func Generate() (ID, error) {
	digits := make([]byte, 16)
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return 0, errors.Wrap(err, "generating heap id")
	}
	for i, b := range buf {
		digits[i] = alphabet[int(b)%len(alphabet)]
	}
	v, err := strconv.ParseUint(string(digits), 16, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parsing generated heap id")
	}
	return ID(v), nil
}

// FromString parses a 16-hex-digit textual HeapID.
func FromString(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing heap id %q", s)
	}
	return ID(v), nil
}

// FromBytes parses an 8-byte big-endian HeapID.
func FromBytes(b []byte) (ID, error) {
	if len(b) != 8 {
		return 0, errors.Errorf("heap id must be 8 bytes, got %d", len(b))
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return ID(v), nil
}

// String renders the canonical 16-hex-digit, zero-padded, uppercase form.
func (id ID) String() string {
	return fmt.Sprintf("%016X", uint64(id))
}

// Bytes renders the 8-byte big-endian form.
func (id ID) Bytes() []byte {
	v := uint64(id)
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// Int64 returns the id's integer value.
func (id ID) Int64() int64 { return int64(id) }

// Path returns the two-level sharded path "XX/YY/ZZZZ..." for this id, as
// described in spec §4.2 / §6.
func (id ID) Path() string {
	s := id.String()
	return path.Join(s[0:2], s[2:4], s[4:])
}
