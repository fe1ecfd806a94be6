package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/clk-66/licensecore/internal/crypto"
	"github.com/clk-66/licensecore/internal/errs"
)

// encryptZeroIV and decryptZeroIV implement §6.2's exception to the
// fresh-IV rule crypto.Encrypt/Decrypt otherwise enforce: exactly one
// plaintext is ever encrypted per secrets file, so a zero IV introduces no
// two-time-pad risk. Any caller re-encrypting more than once per key must
// use crypto.Encrypt instead.

var zeroIV = make([]byte, aes.BlockSize)

func encryptZeroIV(plain, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes cipher: %v", errs.ErrKeyManagement, err)
	}
	padded := crypto.PKCS7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, padded)
	return out, nil
}

func decryptZeroIV(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes cipher: %v", errs.ErrKeyManagement, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block aligned", errs.ErrInvalidLicenseFormat)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(plain, ciphertext)
	return crypto.PKCS7Unpad(plain)
}
