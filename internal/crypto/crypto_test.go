package crypto_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clk-66/licensecore/internal/crypto"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := crypto.GenerateAESKey()
	require.NoError(t, err)

	plain := []byte("the quick brown fox jumps over the lazy dog")
	cipherText, err := crypto.Encrypt(plain, key)
	require.NoError(t, err)
	assert.NotEqual(t, plain, cipherText)

	got, err := crypto.Decrypt(cipherText, key)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncryptUsesFreshIVPerCall(t *testing.T) {
	key, err := crypto.GenerateAESKey()
	require.NoError(t, err)

	plain := []byte("same plaintext")
	a, err := crypto.Encrypt(plain, key)
	require.NoError(t, err)
	b, err := crypto.Encrypt(plain, key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two encryptions of identical plaintext must differ (fresh IV)")
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	key, err := crypto.GenerateAESKey()
	require.NoError(t, err)

	_, err = crypto.Decrypt(key[:8], key)
	assert.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	data := []byte("hash-of-ciphertext")
	sig, err := crypto.Sign(data, priv)
	require.NoError(t, err)

	assert.True(t, crypto.Verify(data, sig, &priv.PublicKey))
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	sig, err := crypto.Sign([]byte("original"), priv)
	require.NoError(t, err)

	assert.False(t, crypto.Verify([]byte("tampered"), sig, &priv.PublicKey))
}

func TestVerifyRejectsCrossKey(t *testing.T) {
	priv1, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv2, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	data := []byte("payload")
	sig, err := crypto.Sign(data, priv1)
	require.NoError(t, err)

	assert.False(t, crypto.Verify(data, sig, &priv2.PublicKey))
}

func TestSHA256AndChecksumAgree(t *testing.T) {
	data := []byte("hello world")
	digest := crypto.SHA256(data)
	assert.Len(t, digest, 32)
	assert.Equal(t, base64.StdEncoding.EncodeToString(digest), crypto.Checksum(data))
}
