package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

// Encryptor seals short values that make a round trip through the browser.
// Every sealed value carries its own random nonce.
type Encryptor struct {
	gcm cipher.AEAD
}

func NewEncryptor(privateKey string) *Encryptor {
	if privateKey == "" {
		panic("PrivateKey is required to create Encryptor")
	}
	key := sha256.Sum256([]byte(privateKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic(err.Error())
	}
	return &Encryptor{gcm: gcm}
}

func (encryptor *Encryptor) EncryptFact(fact string) (string, error) {
	nonce := make([]byte, encryptor.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := encryptor.gcm.Seal(nonce, nonce, []byte(fact), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (encryptor *Encryptor) DecryptFact(encryptedFact string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encryptedFact)
	if err != nil {
		return "", err
	}
	nonceSize := encryptor.gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", errors.New("sealed value is too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := encryptor.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
