package adb

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

// KeyStore is a file-backed RSA credential store implementing
// core.CredentialStore. The key is generated on first use and persisted so a
// device only has to confirm it once.
type KeyStore struct {
	path string
	key  *rsa.PrivateKey
}

// LoadKeyStore reads the key at path, generating and persisting a new one if
// the file does not exist.
func LoadKeyStore(path string) (*KeyStore, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		block, _ := pem.Decode(raw)
		if block == nil {
			return nil, fmt.Errorf("keystore %s: not a PEM file", path)
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("keystore %s: %w", path, err)
		}
		return &KeyStore{path: path, key: key}, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	raw = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, err
	}
	return &KeyStore{path: path, key: key}, nil
}

// Sign produces a raw PKCS#1 v1.5 signature over the daemon's auth token.
func (k *KeyStore) Sign(token []byte) ([]byte, error) {
	return rsa.SignPKCS1v15(rand.Reader, k.key, crypto.Hash(0), token)
}

// PublicKey returns the key in the banner form sent for on-device confirmation.
func (k *KeyStore) PublicKey() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&k.key.PublicKey)
	if err != nil {
		return nil, err
	}
	line := base64.StdEncoding.EncodeToString(der) + " droidview"
	return []byte(line), nil
}
