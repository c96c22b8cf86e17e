package service

import (
	"context"
	"sync"

	"github.com/ILLUVRSE/stark-signer/internal/credentials"
	"github.com/ILLUVRSE/stark-signer/internal/felt"
	"github.com/ILLUVRSE/stark-signer/internal/models"
	"github.com/ILLUVRSE/stark-signer/internal/signing"
)

// Service signs and verifies felt hashes with the key held in the credential
// store. It keeps no mutable state besides the memoized public key.
type Service struct {
	creds     *credentials.Store
	curve     signing.Curve
	publicKey func() (felt.Felt, error)
}

func New(creds *credentials.Store, curve signing.Curve) *Service {
	s := &Service{
		creds: creds,
		curve: curve,
	}
	s.publicKey = sync.OnceValues(func() (felt.Felt, error) {
		return curve.PublicKey(creds.PrivateKey())
	})
	return s
}

// Sign signs the hash encoded in hashText. Every call runs a fresh signing
// operation.
func (s *Service) Sign(ctx context.Context, hashText string) (models.SignResponse, error) {
	hash, err := felt.Decode(hashText)
	if err != nil {
		return models.SignResponse{}, fieldError("hash", err)
	}

	sig, err := s.curve.Sign(s.creds.PrivateKey(), hash)
	if err != nil {
		return models.SignResponse{}, internalError("sign", err)
	}

	resp, err := models.NewSignResponse(sig.R, sig.S)
	if err != nil {
		return models.SignResponse{}, internalError("sign response", err)
	}
	return resp, nil
}

// Verify checks (r, s) over hash against the service's own public key and
// reports that key alongside the verdict.
func (s *Service) Verify(ctx context.Context, req models.VerifyRequest) (models.VerifyResponse, error) {
	hash, err := felt.Decode(req.Hash)
	if err != nil {
		return models.VerifyResponse{}, fieldError("hash", err)
	}
	r, err := felt.Decode(req.R)
	if err != nil {
		return models.VerifyResponse{}, fieldError("r", err)
	}
	sv, err := felt.Decode(req.S)
	if err != nil {
		return models.VerifyResponse{}, fieldError("s", err)
	}

	pub, err := s.publicKey()
	if err != nil {
		return models.VerifyResponse{}, internalError("derive public key", err)
	}

	ok, err := s.curve.Verify(pub, hash, signing.Signature{R: r, S: sv})
	if err != nil {
		return models.VerifyResponse{}, internalError("verify", err)
	}

	resp, err := models.NewVerifyResponse(ok, pub)
	if err != nil {
		return models.VerifyResponse{}, internalError("verify response", err)
	}
	return resp, nil
}

// SelfPublicKey returns the service's public key.
func (s *Service) SelfPublicKey(ctx context.Context) (models.SelfSignerResponse, error) {
	pub, err := s.publicKey()
	if err != nil {
		return models.SelfSignerResponse{}, internalError("derive public key", err)
	}
	resp, err := models.NewSelfSignerResponse(pub)
	if err != nil {
		return models.SelfSignerResponse{}, internalError("self signer response", err)
	}
	return resp, nil
}
