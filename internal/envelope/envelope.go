// Package envelope implements C2: the self-authenticating binary license
// container described in §6.1. It knows nothing about license shapes or
// serialization — it moves opaque payload bytes through
// encrypt/hash/sign (Encode) and verify/decrypt (Decode). Package codec
// composes this with the license serializer port (C3) to round-trip an
// actual *license.License.
package envelope

import (
	"bytes"
	"crypto/rsa"
	"encoding/binary"
	"fmt"

	"github.com/clk-66/licensecore/internal/crypto"
	"github.com/clk-66/licensecore/internal/errs"
)

// lengthPrefixSize is the size, in bytes, of each field's uint32 LE length
// prefix. Four fields means 4*lengthPrefixSize bytes of framing overhead.
const lengthPrefixSize = 4

// Encode turns an arbitrary payload into a signed, encrypted envelope:
//
//  1. aes_key = GenerateAESKey()
//  2. cipher  = Encrypt(payload, aes_key)
//  3. hash    = SHA256(cipher)
//  4. sig     = Sign(hash, priv)
//  5. concatenate hash | sig | cipher | aes_key, each length-prefixed.
//
// Hashing the ciphertext (not the plaintext) and signing the hash keeps the
// RSA operation constant-size regardless of payload length, and lets Decode
// reject tampering before ever attempting decryption.
func Encode(payload []byte, priv *rsa.PrivateKey) ([]byte, error) {
	aesKey, err := crypto.GenerateAESKey()
	if err != nil {
		return nil, err
	}

	cipherText, err := crypto.Encrypt(payload, aesKey)
	if err != nil {
		return nil, err
	}

	hash := crypto.SHA256(cipherText)

	sig, err := crypto.Sign(hash, priv)
	if err != nil {
		return nil, err
	}

	return packFields(hash, sig, cipherText, aesKey), nil
}

// Decode parses an envelope, verifies its signature and ciphertext
// integrity, and returns the decrypted payload.
func Decode(data []byte, pub *rsa.PublicKey) ([]byte, error) {
	hash, sig, cipherText, aesKey, err := splitFields(data)
	if err != nil {
		return nil, err
	}

	if !crypto.Verify(hash, sig, pub) {
		return nil, errs.ErrInvalidLicenseSignature
	}

	recomputed := crypto.SHA256(cipherText)
	if !bytes.Equal(recomputed, hash) {
		return nil, errs.ErrInvalidLicenseSignature
	}

	payload, err := crypto.Decrypt(cipherText, aesKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt payload: %v", errs.ErrInvalidLicenseFormat, err)
	}

	return payload, nil
}

// packFields concatenates the four fields in §6.1 order, each preceded by a
// 4-byte little-endian unsigned length.
func packFields(hash, sig, cipherText, aesKey []byte) []byte {
	fields := [][]byte{hash, sig, cipherText, aesKey}

	total := 0
	for _, f := range fields {
		total += lengthPrefixSize + len(f)
	}

	buf := make([]byte, 0, total)
	for _, f := range fields {
		var lenBuf [lengthPrefixSize]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, f...)
	}
	return buf
}

// splitFields parses the four length-prefixed fields in order and rejects
// any envelope whose declared lengths do not exactly sum to the buffer size.
func splitFields(data []byte) (hash, sig, cipherText, aesKey []byte, err error) {
	fields := make([][]byte, 0, 4)
	offset := 0

	for i := 0; i < 4; i++ {
		if offset+lengthPrefixSize > len(data) {
			return nil, nil, nil, nil, fmt.Errorf("%w: truncated length prefix", errs.ErrInvalidLicenseFormat)
		}
		fieldLen := binary.LittleEndian.Uint32(data[offset : offset+lengthPrefixSize])
		offset += lengthPrefixSize

		end := offset + int(fieldLen)
		if end < offset || end > len(data) {
			return nil, nil, nil, nil, fmt.Errorf("%w: field length out of bounds", errs.ErrInvalidLicenseFormat)
		}
		fields = append(fields, data[offset:end])
		offset = end
	}

	if offset != len(data) {
		return nil, nil, nil, nil, fmt.Errorf("%w: trailing bytes after envelope", errs.ErrInvalidLicenseFormat)
	}

	return fields[0], fields[1], fields[2], fields[3], nil
}
