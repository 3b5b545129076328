package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// Fixed 32-byte seed so signatures are reproducible across runs.
const testSeedHex = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func TestEd25519SignerDeterministic(t *testing.T) {
	s, err := NewEd25519Signer(testSeedHex)
	require.NoError(t, err)

	sig1, err := s.Sign(1700000000, "GET", "/exchange/v1/market/items?gameId=a8db", "")
	require.NoError(t, err)
	sig2, err := s.Sign(1700000000, "GET", "/exchange/v1/market/items?gameId=a8db", "")
	require.NoError(t, err)

	assert.Equal(t, sig1, sig2)
	assert.True(t, strings.HasPrefix(sig1, "dmar ed25519 "))
}

func TestEd25519SignerSignatureVerifies(t *testing.T) {
	s, err := NewEd25519Signer(testSeedHex)
	require.NoError(t, err)

	sig, err := s.Sign(1700000000, "POST", "/exchange/v1/target/create", `{"price":100}`)
	require.NoError(t, err)

	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "dmar ed25519 "))
	require.NoError(t, err)

	pub, err := hex.DecodeString(s.PublicKey())
	require.NoError(t, err)

	msg := "POST/exchange/v1/target/create" + `{"price":100}` + "1700000000"
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), []byte(msg), raw))
}

func TestEd25519SignerAcceptsFullPrivateKey(t *testing.T) {
	seed, err := hex.DecodeString(testSeedHex)
	require.NoError(t, err)
	full := ed25519.NewKeyFromSeed(seed)

	s, err := NewEd25519Signer(hex.EncodeToString(full))
	require.NoError(t, err)

	fromSeed, err := NewEd25519Signer(testSeedHex)
	require.NoError(t, err)

	sig1, _ := s.Sign(1, "GET", "/p", "")
	sig2, _ := fromSeed.Sign(1, "GET", "/p", "")
	assert.Equal(t, sig2, sig1)
}

func TestEd25519SignerRejectsBadSecrets(t *testing.T) {
	cases := map[string]string{
		"not hex":      "zzzz",
		"wrong length": "deadbeef",
		"empty":        "",
	}
	for name, secret := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewEd25519Signer(secret)
			assert.True(t, errors.Is(err, domain.ErrInvalidKeyFormat), "got %v", err)
		})
	}
}

func TestHMACSignerDeterministic(t *testing.T) {
	s, err := NewHMACSigner("00112233445566778899aabbccddeeff")
	require.NoError(t, err)

	sig1, err := s.Sign(1700000000, "GET", "/account/v1/balance", "")
	require.NoError(t, err)
	sig2, err := s.Sign(1700000000, "GET", "/account/v1/balance", "")
	require.NoError(t, err)

	assert.Equal(t, sig1, sig2)
	// Hex-encoded SHA-256 MAC.
	assert.Len(t, sig1, 64)
}

func TestHMACSignerRejectsBadSecret(t *testing.T) {
	_, err := NewHMACSigner("nothex")
	assert.True(t, errors.Is(err, domain.ErrInvalidKeyFormat))

	_, err = NewHMACSigner("")
	assert.True(t, errors.Is(err, domain.ErrInvalidKeyFormat))
}

func TestNewSignerSelectsScheme(t *testing.T) {
	s, err := NewSigner("ed25519", testSeedHex)
	require.NoError(t, err)
	assert.Equal(t, "ed25519", s.Scheme())

	s, err = NewSigner("hmac", "aabbcc")
	require.NoError(t, err)
	assert.Equal(t, "hmac", s.Scheme())

	_, err = NewSigner("rsa", "aabbcc")
	assert.Error(t, err)
}

func TestAuthHeaders(t *testing.T) {
	s, err := NewEd25519Signer(testSeedHex)
	require.NoError(t, err)

	h, err := AuthHeaders(s, "api-key-1", 1700000000, "GET", "/exchange/v1/market/items", "")
	require.NoError(t, err)

	assert.Equal(t, "api-key-1", h[HeaderAPIKey])
	assert.Equal(t, "1700000000", h[HeaderSignDate])
	assert.NotEmpty(t, h[HeaderRequestSign])
}

func TestEncryptDecryptKeyRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testSeedHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testSeedHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}
