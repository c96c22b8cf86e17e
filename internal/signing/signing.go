package signing

import (
	"errors"

	"github.com/ILLUVRSE/stark-signer/internal/felt"
)

var (
	ErrInvalidPrivateKey = errors.New("private key is not a valid stark curve scalar")
	ErrInvalidPublicKey  = errors.New("public key is not the x coordinate of a stark curve point")
)

// Signature is an ECDSA (r, s) pair over the Stark curve.
type Signature struct {
	R felt.Felt
	S felt.Felt
}

// Curve defines the elliptic-curve capability the signer service delegates to.
// Implementations must be safe for concurrent use.
type Curve interface {
	// Sign signs hash with privateKey.
	Sign(privateKey, hash felt.Felt) (Signature, error)

	// PublicKey derives the public key (the x coordinate of privateKey*G).
	PublicKey(privateKey felt.Felt) (felt.Felt, error)

	// Verify reports whether sig is a signature of hash under publicKey. A
	// false verdict is not an error.
	Verify(publicKey, hash felt.Felt, sig Signature) (bool, error)
}
