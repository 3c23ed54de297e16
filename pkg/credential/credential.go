// Package credential defines the card identifier presented to the lock.
//
// A credential is the 4-byte UID read from a proximity card. It carries no
// ordering or structure beyond identity and is trusted as presented.
//
// Matching follows the reader firmware this lock descends from: a credential
// whose first byte is zero is treated as unreadable and never matches
// anything, including an identical credential. Use Equal for plain byte
// equality.
package credential

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Size is the length of a credential in bytes.
const Size = 4

// ErrInvalidFormat is returned when a credential string cannot be parsed.
var ErrInvalidFormat = errors.New("credential: invalid format")

// Credential is a fixed-length card identifier.
type Credential [Size]byte

// Zero is the all-zero credential. It never matches, see Matches.
var Zero Credential

// New builds a credential from a byte slice of exactly Size bytes.
func New(b []byte) (Credential, error) {
	var c Credential
	if len(b) != Size {
		return c, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidFormat, Size, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// Parse decodes a credential from hex. Separators ':', '-' and spaces are
// ignored, so "AA:BB:CC:DD", "aabbccdd" and "AA BB CC DD" are equivalent.
func Parse(s string) (Credential, error) {
	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	b, err := hex.DecodeString(clean)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return New(b)
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) Credential {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Matchable reports whether the credential can ever match.
func (c Credential) Matchable() bool {
	return c[0] != 0
}

// Matches reports whether c and other identify the same card.
// A credential with a zero first byte never matches.
func (c Credential) Matches(other Credential) bool {
	if !c.Matchable() {
		return false
	}
	return c == other
}

// Equal reports plain byte equality, without the zero-first-byte rule.
func (c Credential) Equal(other Credential) bool {
	return c == other
}

// Bytes returns a copy of the credential bytes.
func (c Credential) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, c[:])
	return b
}

// String formats the credential as colon-separated upper-case hex.
func (c Credential) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X", c[0], c[1], c[2], c[3])
}

// MarshalText implements encoding.TextMarshaler.
func (c Credential) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Credential) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
