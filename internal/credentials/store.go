// Package credentials holds the service's secrets for the lifetime of the process.
package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/ILLUVRSE/stark-signer/internal/config"
	"github.com/ILLUVRSE/stark-signer/internal/felt"
)

var ErrEmptyAPIKey = errors.New("api key must not be empty")

// Store is the immutable holder of the API credential and the private key.
// It has no setters; share it by pointer across goroutines.
type Store struct {
	apiKeyDigest [sha256.Size]byte
	privateKey   felt.Felt
}

// New builds a Store. The API key is kept only as a digest so comparisons do
// not depend on its length.
func New(apiKey string, privateKey felt.Felt) (*Store, error) {
	if apiKey == "" {
		return nil, ErrEmptyAPIKey
	}
	return &Store{
		apiKeyDigest: sha256.Sum256([]byte(apiKey)),
		privateKey:   privateKey,
	}, nil
}

// FromConfig decodes STARKNET_PRIVATE_KEY and builds the Store.
func FromConfig(cfg config.Config) (*Store, error) {
	key, err := felt.Decode(cfg.PrivateKey.Reveal())
	if err != nil {
		return nil, fmt.Errorf("invalid value for env var STARKNET_PRIVATE_KEY: %w", err)
	}
	return New(cfg.APIKey.Reveal(), key)
}

// MatchAPIKey reports whether token equals the configured API key, in constant time.
func (s *Store) MatchAPIKey(token string) bool {
	digest := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(digest[:], s.apiKeyDigest[:]) == 1
}

// PrivateKey returns a copy of the signing scalar.
func (s *Store) PrivateKey() felt.Felt {
	return s.privateKey
}

func (s *Store) String() string {
	return "credentials.Store{<redacted>}"
}

func (s *Store) GoString() string {
	return s.String()
}
