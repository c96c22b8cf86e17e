package models

import (
	"errors"

	"github.com/ILLUVRSE/stark-signer/internal/felt"
)

var ErrMissingField = errors.New("response field missing")

// SignRequest asks the service to sign a felt hash. Fields stay text so the
// service can name the one that fails to decode.
type SignRequest struct {
	Hash string `json:"hash" validate:"required"`
}

// SignResponse carries the signature components. They marshal as canonical hex.
type SignResponse struct {
	R felt.Felt `json:"r"`
	S felt.Felt `json:"s"`
}

// VerifyRequest asks whether (r, s) signs hash under the service's key.
type VerifyRequest struct {
	Hash string `json:"hash" validate:"required"`
	R    string `json:"r" validate:"required"`
	S    string `json:"s" validate:"required"`
}

// VerifyResponse reports the verdict and the public key it was checked against.
type VerifyResponse struct {
	IsValid   bool      `json:"is_valid"`
	PublicKey felt.Felt `json:"public_key"`
}

// SelfSignerResponse discloses the service's public key.
type SelfSignerResponse struct {
	PublicKey felt.Felt `json:"public_key"`
}

// HealthResponse is the static liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewSignResponse rejects zero components; a stark signature never has them.
func NewSignResponse(r, s felt.Felt) (SignResponse, error) {
	if r.IsZero() || s.IsZero() {
		return SignResponse{}, ErrMissingField
	}
	return SignResponse{R: r, S: s}, nil
}

func NewVerifyResponse(isValid bool, publicKey felt.Felt) (VerifyResponse, error) {
	if publicKey.IsZero() {
		return VerifyResponse{}, ErrMissingField
	}
	return VerifyResponse{IsValid: isValid, PublicKey: publicKey}, nil
}

func NewSelfSignerResponse(publicKey felt.Felt) (SelfSignerResponse, error) {
	if publicKey.IsZero() {
		return SelfSignerResponse{}, ErrMissingField
	}
	return SelfSignerResponse{PublicKey: publicKey}, nil
}

func NewHealthResponse(service, version string) (HealthResponse, error) {
	if service == "" || version == "" {
		return HealthResponse{}, ErrMissingField
	}
	return HealthResponse{Status: "ok", Service: service, Version: version}, nil
}
