// Copyright 2025 Citadel Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package delegate

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-citadel/citadel/internal/engine/model"
)

const dataKeySize = 32 // AES-256

// LocalDelegate is the in-process LOCAL provider: AES-256-GCM envelope
// encryption. Every secret gets a fresh random data key; the record's
// encryption key field holds that data key wrapped by the node master key,
// so rotating a secret never touches another one.
type LocalDelegate struct {
	masterKey []byte
}

func NewLocalDelegate(masterKey []byte) (*LocalDelegate, error) {
	if len(masterKey) != dataKeySize {
		return nil, fmt.Errorf("local master key must be %d bytes, got %d", dataKeySize, len(masterKey))
	}
	return &LocalDelegate{masterKey: masterKey}, nil
}

func (ld *LocalDelegate) Encrypt(_ context.Context, req *EncryptRequest) (*EncryptResult, error) {
	dataKey := make([]byte, dataKeySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return nil, err
	}

	wrapped, err := seal(ld.masterKey, dataKey)
	if err != nil {
		return nil, err
	}

	result := &EncryptResult{
		EncryptionKey: base64.StdEncoding.EncodeToString(wrapped),
	}

	// A nil plaintext is legal: the record keeps a key but no ciphertext.
	if req.Plaintext == nil {
		return result, nil
	}

	cipherText, err := seal(dataKey, req.Plaintext)
	if err != nil {
		return nil, err
	}
	result.EncryptedValue = cipherText
	return result, nil
}

func (ld *LocalDelegate) Decrypt(_ context.Context, record *model.EncryptedRecord, _ *model.ProviderConfig) ([]byte, error) {
	if record.EncryptedValue == nil {
		return nil, nil
	}

	wrapped, err := base64.StdEncoding.DecodeString(record.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}

	dataKey, err := open(ld.masterKey, wrapped)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}

	plainText, err := open(dataKey, record.EncryptedValue)
	if err != nil {
		return nil, fmt.Errorf("decrypt value: %w", err)
	}
	return plainText, nil
}

// Validate always succeeds: the local provider has no remote credential.
func (ld *LocalDelegate) Validate(context.Context, *model.ProviderConfig) error {
	return nil
}

// Seal encrypts an internal parameter (e.g. a provider-config credential)
// through the same envelope and packs key and ciphertext into one token.
func (ld *LocalDelegate) Seal(plaintext string) (string, error) {
	result, err := ld.Encrypt(context.Background(), &EncryptRequest{Plaintext: []byte(plaintext)})
	if err != nil {
		return "", err
	}
	return result.EncryptionKey + ":" + base64.StdEncoding.EncodeToString(result.EncryptedValue), nil
}

// Open reverses Seal.
func (ld *LocalDelegate) Open(token string) (string, error) {
	key, value, ok := strings.Cut(token, ":")
	if !ok {
		return "", errors.New("malformed sealed token")
	}
	cipherText, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", err
	}
	plainText, err := ld.Decrypt(context.Background(), &model.EncryptedRecord{
		EncryptionKey:  key,
		EncryptedValue: cipherText,
	}, nil)
	if err != nil {
		return "", err
	}
	return string(plainText), nil
}

// seal encrypts data with key using AES-GCM, nonce prepended.
func seal(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// open decrypts data produced by seal.
func open(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("invalid cipher text")
	}

	nonce, cipherText := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, cipherText, nil)
}
