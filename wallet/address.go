package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressSize is the length of an account address in bytes.
const AddressSize = 20

// Address is a 20-byte account identifier derived from a secp256k1 public key.
// Its canonical text form is lowercase 0x-prefixed hex, which is what every
// comparison and map key in this module uses.
type Address [AddressSize]byte

// ParseAddress parses a 0x-prefixed hex address. Case is ignored; mixed-case
// (EIP-55) input is accepted without checksum enforcement so that addresses
// copied from any wallet compare equal.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	if len(s) != 2+2*AddressSize || (s[:2] != "0x" && s[:2] != "0X") {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return a, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error. Intended for
// constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes returns the address held in the last 20 bytes of b.
func AddressFromBytes(b []byte) Address {
	var a Address
	if len(b) > AddressSize {
		b = b[len(b)-AddressSize:]
	}
	copy(a[AddressSize-len(b):], b)
	return a
}

// String returns the canonical lowercase form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Checksum returns the EIP-55 mixed-case encoding of a.
func (a Address) Checksum() string {
	lower := hex.EncodeToString(a[:])
	hash := Keccak256([]byte(lower))

	out := make([]byte, 0, 2+len(lower))
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			// Nibble i of the hash decides the case of hex digit i.
			nibble := hash[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c -= 'a' - 'A'
			}
		}
		out = append(out, c)
	}
	return string(out)
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
