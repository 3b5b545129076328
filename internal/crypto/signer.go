// Package crypto provides key management and request signing for the
// marketplace API. Two signing schemes are supported behind one interface:
// the current ed25519 scheme and the legacy HMAC-SHA256 scheme. The scheme
// is selected once at construction from configuration, never per request.
package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// Header names for authenticated requests.
const (
	HeaderAPIKey      = "X-Api-Key"
	HeaderSignDate    = "X-Sign-Date"
	HeaderRequestSign = "X-Request-Sign"
)

// ed25519Prefix tags signatures produced by the current scheme, per the
// marketplace's documented header format.
const ed25519Prefix = "dmar ed25519 "

// Signer produces a request signature from the canonical string-to-sign.
// Implementations are pure: identical inputs always yield identical output.
type Signer interface {
	// Sign signs method + path + body + timestamp and returns the value for
	// the X-Request-Sign header.
	Sign(timestamp int64, method, path, body string) (string, error)
	// Scheme returns the configuration name of the signing scheme.
	Scheme() string
}

// Ed25519Signer signs requests with an ed25519 private key.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

// NewEd25519Signer creates a signer from a hex-encoded ed25519 secret: either
// a 32-byte seed or a full 64-byte private key.
func NewEd25519Signer(secretHex string) (*Ed25519Signer, error) {
	raw, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode ed25519 secret: %w: %v", domain.ErrInvalidKeyFormat, err)
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("crypto: ed25519 secret is %d bytes, want %d or %d: %w",
			len(raw), ed25519.SeedSize, ed25519.PrivateKeySize, domain.ErrInvalidKeyFormat)
	}

	return &Ed25519Signer{key: key}, nil
}

// Sign implements Signer.
func (s *Ed25519Signer) Sign(timestamp int64, method, path, body string) (string, error) {
	msg := stringToSign(timestamp, method, path, body)
	sig := ed25519.Sign(s.key, []byte(msg))
	return ed25519Prefix + hex.EncodeToString(sig), nil
}

// Scheme implements Signer.
func (s *Ed25519Signer) Scheme() string { return "ed25519" }

// PublicKey returns the hex-encoded public key derived from the secret.
func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// AuthHeaders builds the authentication headers for one request.
func AuthHeaders(s Signer, apiKey string, timestamp int64, method, path, body string) (map[string]string, error) {
	sig, err := s.Sign(timestamp, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign request: %w", err)
	}
	return map[string]string{
		HeaderAPIKey:      apiKey,
		HeaderSignDate:    strconv.FormatInt(timestamp, 10),
		HeaderRequestSign: sig,
	}, nil
}

// stringToSign builds the canonical message: method, path (with sorted
// query), body, then the unix-seconds timestamp.
func stringToSign(timestamp int64, method, path, body string) string {
	return method + path + body + strconv.FormatInt(timestamp, 10)
}
