// Package auth implements the ApiKey authorization scheme guarding the signer.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Scheme is the authorization scheme name, matched case-insensitively.
const Scheme = "ApiKey"

var ErrUnauthorized = errors.New("unauthorized")

// KeyMatcher checks a presented token against the configured credential.
type KeyMatcher interface {
	MatchAPIKey(token string) bool
}

// Authorize checks an Authorization header value of the form "ApiKey <token>".
// The header is split on its first space; the remainder must equal the key.
func Authorize(header string, keys KeyMatcher) error {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, Scheme) {
		return ErrUnauthorized
	}
	if !keys.MatchAPIKey(token) {
		return ErrUnauthorized
	}
	return nil
}

// Middleware rejects requests that fail Authorize before they reach next.
// reject writes the response for refused requests.
func Middleware(keys KeyMatcher, reject http.HandlerFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if err := Authorize(header, keys); err != nil {
				logger.Debug("api key rejected",
					zap.String("path", r.URL.Path),
					zap.Bool("header_present", header != ""))
				reject(w, r)
				return
			}
			logger.Debug("api key authorized", zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}
