package signing

import (
	"fmt"
	"math/big"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/ecdsa"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"

	"github.com/ILLUVRSE/stark-signer/internal/felt"
)

var curveOrder = fr.Modulus()

// StarkCurve implements Curve with gnark-crypto's stark-curve ECDSA.
//
// The hash is fed to the primitive as its minimal big-endian bytes and no
// hash function is applied on top, so the signed integer is the felt itself.
// Nonces come from gnark-crypto's hedged CSPRNG.
type StarkCurve struct{}

func NewStarkCurve() *StarkCurve {
	return &StarkCurve{}
}

func (c *StarkCurve) Sign(privateKey, hash felt.Felt) (Signature, error) {
	key, err := signingKey(privateKey)
	if err != nil {
		return Signature{}, err
	}
	sigBin, err := key.Sign(message(hash), nil)
	if err != nil {
		return Signature{}, fmt.Errorf("stark sign: %w", err)
	}
	var raw ecdsa.Signature
	if _, err := raw.SetBytes(sigBin); err != nil {
		return Signature{}, fmt.Errorf("stark sign: decode signature: %w", err)
	}
	r, err := felt.FromBigInt(new(big.Int).SetBytes(raw.R[:]))
	if err != nil {
		return Signature{}, fmt.Errorf("stark sign: r: %w", err)
	}
	s, err := felt.FromBigInt(new(big.Int).SetBytes(raw.S[:]))
	if err != nil {
		return Signature{}, fmt.Errorf("stark sign: s: %w", err)
	}
	return Signature{R: r, S: s}, nil
}

func (c *StarkCurve) PublicKey(privateKey felt.Felt) (felt.Felt, error) {
	point, err := publicPoint(privateKey)
	if err != nil {
		return felt.Felt{}, err
	}
	return felt.FromElement(point.X), nil
}

// Verify accepts a signature made for either of the two curve points sharing
// the public key's x coordinate.
func (c *StarkCurve) Verify(publicKey, hash felt.Felt, sig Signature) (bool, error) {
	r, s := sig.R.BigInt(), sig.S.BigInt()
	if !inScalarRange(r) || !inScalarRange(s) {
		return false, nil
	}
	point, err := pointFromX(publicKey)
	if err != nil {
		return false, err
	}
	var negated starkcurve.G1Affine
	negated.Neg(&point)

	sigBin := make([]byte, 2*fr.Bytes)
	r.FillBytes(sigBin[:fr.Bytes])
	s.FillBytes(sigBin[fr.Bytes:])
	msg := message(hash)

	for _, candidate := range []starkcurve.G1Affine{point, negated} {
		pub := ecdsa.PublicKey{A: candidate}
		ok, err := pub.Verify(sigBin, msg, nil)
		if err != nil {
			return false, fmt.Errorf("stark verify: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func inScalarRange(n *big.Int) bool {
	return n.Sign() > 0 && n.Cmp(curveOrder) < 0
}

func scalar(privateKey felt.Felt) (*big.Int, error) {
	k := privateKey.BigInt()
	if !inScalarRange(k) {
		return nil, ErrInvalidPrivateKey
	}
	return k, nil
}

func publicPoint(privateKey felt.Felt) (starkcurve.G1Affine, error) {
	k, err := scalar(privateKey)
	if err != nil {
		return starkcurve.G1Affine{}, err
	}
	var point starkcurve.G1Affine
	point.ScalarMultiplicationBase(k)
	return point, nil
}

// signingKey assembles an ecdsa.PrivateKey from its serialized form
// (compressed public point || big-endian scalar).
func signingKey(privateKey felt.Felt) (*ecdsa.PrivateKey, error) {
	k, err := scalar(privateKey)
	if err != nil {
		return nil, err
	}
	var point starkcurve.G1Affine
	point.ScalarMultiplicationBase(k)

	compressed := point.Bytes()
	buf := make([]byte, 0, len(compressed)+fr.Bytes)
	buf = append(buf, compressed[:]...)
	buf = append(buf, k.FillBytes(make([]byte, fr.Bytes))...)

	key := new(ecdsa.PrivateKey)
	if _, err := key.SetBytes(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key, nil
}

// pointFromX solves y^2 = x^3 + a*x + b for the given x.
func pointFromX(x felt.Felt) (starkcurve.G1Affine, error) {
	a, b := starkcurve.CurveCoefficients()
	xe := x.Element()

	var rhs, ax, y fp.Element
	rhs.Square(&xe).Mul(&rhs, &xe)
	ax.Mul(&a, &xe)
	rhs.Add(&rhs, &ax).Add(&rhs, &b)
	if y.Sqrt(&rhs) == nil {
		return starkcurve.G1Affine{}, ErrInvalidPublicKey
	}
	return starkcurve.G1Affine{X: xe, Y: y}, nil
}

func message(hash felt.Felt) []byte {
	return hash.BigInt().Bytes()
}
