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
	"fmt"

	"github.com/go-citadel/citadel/internal/engine/model"
)

// EncryptRequest carries one encryption call to a provider delegate.
// Plaintext may be nil; the provider must still hand back a key reference
// with no ciphertext. Previous is set on re-encryption so path-based
// providers can reuse or retire the old key reference.
type EncryptRequest struct {
	Name      string
	Plaintext []byte
	Config    *model.ProviderConfig
	Previous  *model.EncryptedRecord
}

// EncryptResult is the provider's answer: an opaque key reference (wrapped
// data key or secret-engine path) and the ciphertext, nil for nil plaintext.
type EncryptResult struct {
	EncryptionKey  string
	EncryptedValue []byte
}

// Delegate performs encrypt/decrypt with a provider's real key material.
// Implementations: the in-process LOCAL delegate and the remote HTTP
// delegate fronting KMS and Vault.
type Delegate interface {
	Encrypt(ctx context.Context, req *EncryptRequest) (*EncryptResult, error)
	Decrypt(ctx context.Context, record *model.EncryptedRecord, config *model.ProviderConfig) ([]byte, error)
	// Validate probes the provider with the given config; it returns
	// core.ErrInvalidProviderConfig on an authentication rejection.
	Validate(ctx context.Context, config *model.ProviderConfig) error
}

// Dispatcher routes calls to the in-process local delegate or the remote
// delegate by encryption type.
type Dispatcher struct {
	local  Delegate
	remote Delegate
}

func NewDispatcher(local, remote Delegate) *Dispatcher {
	return &Dispatcher{local: local, remote: remote}
}

func (d *Dispatcher) forType(t model.EncryptionType) (Delegate, error) {
	switch t {
	case model.EncryptionTypeLocal:
		return d.local, nil
	case model.EncryptionTypeKMS, model.EncryptionTypeVault:
		return d.remote, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %s", t)
	}
}

func (d *Dispatcher) Encrypt(ctx context.Context, req *EncryptRequest) (*EncryptResult, error) {
	dg, err := d.forType(req.Config.Type)
	if err != nil {
		return nil, err
	}
	return dg.Encrypt(ctx, req)
}

func (d *Dispatcher) Decrypt(ctx context.Context, record *model.EncryptedRecord, config *model.ProviderConfig) ([]byte, error) {
	dg, err := d.forType(record.EncryptionType)
	if err != nil {
		return nil, err
	}
	return dg.Decrypt(ctx, record, config)
}

func (d *Dispatcher) Validate(ctx context.Context, config *model.ProviderConfig) error {
	dg, err := d.forType(config.Type)
	if err != nil {
		return err
	}
	return dg.Validate(ctx, config)
}
