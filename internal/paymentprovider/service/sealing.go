package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	"gorm.io/datatypes"
)

const envelopeVersion = 1

type envelope struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// DeriveKey turns the operator secret into an AES-256 key.
func DeriveKey(secret string) []byte {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Seal encrypts credentials into the stored envelope.
func Seal(key []byte, creds domain.Credentials) (datatypes.JSON, error) {
	if len(key) == 0 {
		return nil, domain.ErrEncryptionKeyMissing
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return nil, domain.ErrInvalidConfig
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out, err := json.Marshal(envelope{
		Version:    envelopeVersion,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(gcm.Seal(nil, nonce, payload, nil)),
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

// Open reverses Seal.
func Open(key []byte, raw datatypes.JSON) (domain.Credentials, error) {
	if len(key) == 0 {
		return domain.Credentials{}, domain.ErrEncryptionKeyMissing
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Credentials{}, domain.ErrInvalidConfig
	}
	if env.Version != envelopeVersion || env.Nonce == "" || env.Ciphertext == "" {
		return domain.Credentials{}, domain.ErrInvalidConfig
	}

	nonce, err := base64.RawStdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return domain.Credentials{}, domain.ErrInvalidConfig
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return domain.Credentials{}, domain.ErrInvalidConfig
	}

	gcm, err := newGCM(key)
	if err != nil {
		return domain.Credentials{}, err
	}
	if len(nonce) != gcm.NonceSize() {
		return domain.Credentials{}, domain.ErrInvalidConfig
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return domain.Credentials{}, errors.Join(domain.ErrInvalidConfig, err)
	}

	var creds domain.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return domain.Credentials{}, domain.ErrInvalidConfig
	}
	return creds, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
