package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// HMACSigner implements the legacy symmetric signing scheme: HMAC-SHA256
// over the canonical string-to-sign, hex-encoded. Retained for accounts
// whose API keys predate the ed25519 rollout.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner creates a signer from a hex-encoded shared secret.
func NewHMACSigner(secretHex string) (*HMACSigner, error) {
	raw, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode hmac secret: %w: %v", domain.ErrInvalidKeyFormat, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("crypto: empty hmac secret: %w", domain.ErrInvalidKeyFormat)
	}
	return &HMACSigner{secret: raw}, nil
}

// Sign implements Signer.
func (s *HMACSigner) Sign(timestamp int64, method, path, body string) (string, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(stringToSign(timestamp, method, path, body)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Scheme implements Signer.
func (s *HMACSigner) Scheme() string { return "hmac" }

// NewSigner selects a signing scheme by configuration name.
func NewSigner(scheme, secretHex string) (Signer, error) {
	switch scheme {
	case "ed25519", "":
		return NewEd25519Signer(secretHex)
	case "hmac":
		return NewHMACSigner(secretHex)
	default:
		return nil, fmt.Errorf("crypto: unknown signing scheme %q", scheme)
	}
}
