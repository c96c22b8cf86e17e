// Package felt implements the wire encoding of Stark field elements.
//
// Every hash, scalar and signature component that crosses the HTTP boundary is
// a felt rendered as canonical hex: "0x" followed by the lowercase minimal
// digits of the value. Decoding accepts an optional 0x/0X prefix and
// surrounding whitespace, and rejects anything that is not a residue of the
// Stark prime p = 2^251 + 17*2^192 + 1.
package felt

import (
	"errors"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// ErrInvalidEncoding is returned for empty, non-hex or out-of-range text.
var ErrInvalidEncoding = errors.New("invalid field element encoding")

var modulus = fp.Modulus()

// Felt is an element of the Stark prime field. The zero value is 0.
type Felt struct {
	e fp.Element
}

// Decode parses canonical (or prefix-less, mixed-case) hex text into a Felt.
func Decode(text string) (Felt, error) {
	s := strings.TrimSpace(text)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if s == "" || !isHex(s) {
		return Felt{}, ErrInvalidEncoding
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok || n.Cmp(modulus) >= 0 {
		return Felt{}, ErrInvalidEncoding
	}
	var f Felt
	f.e.SetBigInt(n)
	return f, nil
}

// FromBigInt converts n into a Felt, failing when n is negative or >= p.
func FromBigInt(n *big.Int) (Felt, error) {
	if n == nil || n.Sign() < 0 || n.Cmp(modulus) >= 0 {
		return Felt{}, ErrInvalidEncoding
	}
	var f Felt
	f.e.SetBigInt(n)
	return f, nil
}

// FromUint64 returns v as a Felt.
func FromUint64(v uint64) Felt {
	var f Felt
	f.e.SetUint64(v)
	return f
}

// FromElement wraps a curve-library field element.
func FromElement(e fp.Element) Felt {
	return Felt{e: e}
}

// Element returns the underlying curve-library field element.
func (f Felt) Element() fp.Element {
	return f.e
}

// BigInt returns the value as a fresh big.Int.
func (f Felt) BigInt() *big.Int {
	return f.e.BigInt(new(big.Int))
}

// IsZero reports whether f is the additive identity.
func (f Felt) IsZero() bool {
	return f.e.IsZero()
}

// Encode returns the canonical encoding of f, e.g. "0x1f".
func Encode(f Felt) string {
	return "0x" + f.e.Text(16)
}

func (f Felt) String() string {
	return Encode(f)
}

// MarshalText implements encoding.TextMarshaler.
func (f Felt) MarshalText() ([]byte, error) {
	return []byte(Encode(f)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Felt) UnmarshalText(text []byte) error {
	v, err := Decode(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
