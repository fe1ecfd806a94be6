// Package secrets implements §6.2's secrets file: the process-wide
// {public_key, private_key, encryption_key, api_key} structure generated
// once by the setup utility and loaded read-only thereafter. The file
// itself is AES-256-CBC over a zero IV with key = SHA-256(passphrase); a
// bcrypt hash of the passphrase is stored alongside it so Load rejects a
// wrong passphrase before attempting decryption. Load does no throttling
// of its own beyond the cost of one bcrypt comparison per call.
package secrets

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"

	"github.com/clk-66/licensecore/internal/crypto"
	"github.com/clk-66/licensecore/internal/errs"
)

const rsaKeyBits = 2048

// Secrets is the decrypted, in-memory process-wide structure (§1: "read-only
// thereafter").
type Secrets struct {
	PublicKey     *rsa.PublicKey
	PrivateKey    *rsa.PrivateKey
	EncryptionKey []byte
	ApiKey        string
}

// plaintext is the JSON shape encrypted into the secrets file. Keys are
// PKCS#1 DER, matching §1's "raw PKCS#1 DER base64-encoded" wire form —
// json.Marshal base64-encodes []byte fields for us.
type plaintext struct {
	PublicKey     []byte `json:"PublicKey"`
	PrivateKey    []byte `json:"PrivateKey"`
	EncryptionKey []byte `json:"EncryptionKey"`
	ApiKey        string `json:"ApiKey"`
}

// File is the on-disk layout: the encrypted blob plus a bcrypt hash of the
// passphrase, so Load can report a wrong passphrase without attempting (and
// silently failing to validate) a decrypt on corrupt ciphertext.
type File struct {
	PassphraseHash string `json:"passphrase_hash"`
	Ciphertext     []byte `json:"ciphertext"`
}

// Generate mints a fresh RSA keypair, AES encryption key, and random API
// key, and returns the Secrets plus the encrypted File ready to persist.
func Generate(passphrase string) (*Secrets, *File, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: generate rsa key: %v", errs.ErrKeyManagement, err)
	}

	encKey, err := crypto.GenerateAESKey()
	if err != nil {
		return nil, nil, err
	}

	apiKey := make([]byte, 24)
	if _, err := rand.Read(apiKey); err != nil {
		return nil, nil, fmt.Errorf("%w: generate api key: %v", errs.ErrKeyManagement, err)
	}

	s := &Secrets{
		PublicKey:     &priv.PublicKey,
		PrivateKey:    priv,
		EncryptionKey: encKey,
		ApiKey:        crypto.Checksum(apiKey),
	}

	file, err := encode(s, passphrase)
	if err != nil {
		return nil, nil, err
	}
	return s, file, nil
}

// Save writes file to path, creating parent directories as needed.
func Save(path string, file *File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: create secrets dir: %v", errs.ErrKeyManagement, err)
	}
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("%w: encode secrets file: %v", errs.ErrKeyManagement, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: write secrets file: %v", errs.ErrKeyManagement, err)
	}
	return nil
}

// Load reads the secrets file at path and decrypts it with passphrase. It
// checks the bcrypt hash before attempting decryption, so a wrong
// passphrase fails fast with ErrKeyManagement rather than producing a
// PKCS7-unpad error deep in crypto.Decrypt.
func Load(path, passphrase string) (*Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read secrets file: %v", errs.ErrKeyManagement, err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse secrets file: %v", errs.ErrKeyManagement, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(file.PassphraseHash), []byte(passphrase)); err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase", errs.ErrKeyManagement)
	}

	return decode(&file, passphrase)
}

func encode(s *Secrets, passphrase string) (*File, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash passphrase: %v", errs.ErrKeyManagement, err)
	}

	pt := plaintext{
		PublicKey:     x509.MarshalPKCS1PublicKey(s.PublicKey),
		PrivateKey:    x509.MarshalPKCS1PrivateKey(s.PrivateKey),
		EncryptionKey: s.EncryptionKey,
		ApiKey:        s.ApiKey,
	}
	plain, err := json.Marshal(pt)
	if err != nil {
		return nil, fmt.Errorf("%w: encode secrets: %v", errs.ErrKeyManagement, err)
	}

	key := sha256.Sum256([]byte(passphrase))
	cipher, err := encryptZeroIV(plain, key[:])
	if err != nil {
		return nil, err
	}

	return &File{PassphraseHash: string(hash), Ciphertext: cipher}, nil
}

func decode(file *File, passphrase string) (*Secrets, error) {
	key := sha256.Sum256([]byte(passphrase))
	plain, err := decryptZeroIV(file.Ciphertext, key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt secrets file: %v", errs.ErrKeyManagement, err)
	}

	var pt plaintext
	if err := json.Unmarshal(plain, &pt); err != nil {
		return nil, fmt.Errorf("%w: parse decrypted secrets: %v", errs.ErrKeyManagement, err)
	}

	priv, err := x509.ParsePKCS1PrivateKey(pt.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", errs.ErrKeyManagement, err)
	}

	return &Secrets{
		PublicKey:     &priv.PublicKey,
		PrivateKey:    priv,
		EncryptionKey: pt.EncryptionKey,
		ApiKey:        pt.ApiKey,
	}, nil
}
