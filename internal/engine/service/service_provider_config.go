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

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-citadel/citadel/internal/engine/repo"
	"github.com/go-citadel/citadel/internal/pkg/delegate"
	"github.com/go-citadel/citadel/pkg/id"
	"github.com/go-citadel/citadel/pkg/log"
	"gorm.io/gorm"
)

// ProviderConfigService manages named KMS/Vault configurations and resolves
// the active provider for an account. LOCAL never has a stored config; it is
// the implicit fallback.
type ProviderConfigService struct {
	configRepo     repo.IProviderConfigRepository
	recordRepo     repo.IEncryptedRecordRepository
	transitionRepo repo.ITransitionRepository
	local          *delegate.LocalDelegate
	dispatcher     delegate.Delegate
}

func NewProviderConfigService(
	configRepo repo.IProviderConfigRepository,
	recordRepo repo.IEncryptedRecordRepository,
	transitionRepo repo.ITransitionRepository,
	local *delegate.LocalDelegate,
	dispatcher delegate.Delegate,
) *ProviderConfigService {
	return &ProviderConfigService{
		configRepo:     configRepo,
		recordRepo:     recordRepo,
		transitionRepo: transitionRepo,
		local:          local,
		dispatcher:     dispatcher,
	}
}

// Save validates the config against the live provider before anything is
// persisted, seals the credential through the LOCAL path, and stores the
// config. A new default demotes the previous default of the same type in the
// same step.
func (ps *ProviderConfigService) Save(ctx context.Context, config *model.ProviderConfig, credential, createdBy string) (string, error) {
	if config.Type != model.EncryptionTypeKMS && config.Type != model.EncryptionTypeVault {
		return "", fmt.Errorf("unsupported provider type: %s", config.Type)
	}
	if config.Name == "" {
		return "", errors.New("name is required")
	}

	if config.ConfigId == "" {
		config.ConfigId = id.GetUUID()
		config.CreatedBy = createdBy
	} else {
		// Update in place: carry over the row identity and, when the caller
		// left the credential out, the stored sealed credential.
		existing, err := ps.configRepo.Get(config.AccountId, config.ConfigId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", fmt.Errorf("%w: no provider config %s", core.ErrInvalidProviderConfig, config.ConfigId)
			}
			return "", err
		}
		config.BaseModel = existing.BaseModel
		config.CreatedBy = existing.CreatedBy
		if credential == "" {
			config.SecretRef = existing.SecretRef
			if credential, err = ps.local.Open(existing.SecretRef); err != nil {
				return "", fmt.Errorf("unseal provider credential: %w", err)
			}
		}
	}

	// Probe with the plain credential; a rejection is fatal and surfaces now.
	probe := *config
	probe.SecretRef = credential
	if err := ps.dispatcher.Validate(ctx, &probe); err != nil {
		log.Errorf("provider config %s failed validation: %v", config.Name, err)
		return "", err
	}

	if credential != "" {
		sealed, err := ps.local.Seal(credential)
		if err != nil {
			return "", err
		}
		config.SecretRef = sealed
	}

	if err := ps.configRepo.Save(config); err != nil {
		return "", err
	}
	log.Infof("provider config saved: %s (%s, default=%t)", config.ConfigId, config.Type, config.IsDefault)
	return config.ConfigId, nil
}

// List returns the account's KMS and Vault configs. LOCAL never appears.
func (ps *ProviderConfigService) List(accountId string) ([]*model.ProviderConfig, error) {
	return ps.configRepo.List(accountId)
}

// Delete rejects while any record's ciphertext or any unresolved transition
// still points at the config.
func (ps *ProviderConfigService) Delete(accountId, configId string) error {
	if _, err := ps.configRepo.Get(accountId, configId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no provider config %s", core.ErrInvalidProviderConfig, configId)
		}
		return err
	}

	total, err := ps.recordRepo.CountByProviderConfig(configId)
	if err != nil {
		return err
	}
	if total > 0 {
		return fmt.Errorf("%w: %d secrets still encrypted with provider config %s", core.ErrSecretReferenced, total, configId)
	}

	inFlight, err := ps.transitionRepo.ExistsForProvider(accountId, configId)
	if err != nil {
		return err
	}
	if inFlight {
		return fmt.Errorf("%w: provider config %s has an unresolved transition", core.ErrSecretReferenced, configId)
	}

	return ps.configRepo.Delete(accountId, configId)
}

// Default resolves the provider to encrypt new secrets with: the default
// Vault config if present, else the default KMS config, else implicit LOCAL.
func (ps *ProviderConfigService) Default(accountId string) (*model.ProviderConfig, error) {
	for _, t := range []model.EncryptionType{model.EncryptionTypeVault, model.EncryptionTypeKMS} {
		defaults, err := ps.configRepo.ListDefaults(accountId, t)
		if err != nil {
			return nil, err
		}
		switch len(defaults) {
		case 0:
			continue
		case 1:
			return ps.unsealed(defaults[0])
		default:
			// Must never happen; saving demotes the previous default.
			return nil, fmt.Errorf("%w: %d defaults of type %s in account %s",
				core.ErrDuplicateDefaultProvider, len(defaults), t, accountId)
		}
	}
	return model.LocalProviderConfig(accountId), nil
}

// ForRecord resolves the provider config a record's ciphertext was produced
// under, credential unsealed and ready for a delegate call.
func (ps *ProviderConfigService) ForRecord(record *model.EncryptedRecord) (*model.ProviderConfig, error) {
	if record.EncryptionType == model.EncryptionTypeLocal {
		return model.LocalProviderConfig(record.AccountId), nil
	}

	config, err := ps.configRepo.Get(record.AccountId, record.ProviderConfigId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: provider config %s is gone", core.ErrInvalidProviderConfig, record.ProviderConfigId)
		}
		return nil, err
	}
	return ps.unsealed(config)
}

// Resolve loads one side of a transition request: empty configId means LOCAL.
func (ps *ProviderConfigService) Resolve(accountId string, encryptionType model.EncryptionType, configId string) (*model.ProviderConfig, error) {
	if encryptionType == model.EncryptionTypeLocal {
		return model.LocalProviderConfig(accountId), nil
	}

	config, err := ps.configRepo.Get(accountId, configId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no %s config %s", core.ErrInvalidProviderConfig, encryptionType, configId)
		}
		return nil, err
	}
	if config.Type != encryptionType {
		return nil, fmt.Errorf("%w: config %s is %s, not %s", core.ErrInvalidProviderConfig, configId, config.Type, encryptionType)
	}
	return ps.unsealed(config)
}

// unsealed returns a transient copy with the credential opened for delegate
// use. The stored row keeps the sealed form.
func (ps *ProviderConfigService) unsealed(config *model.ProviderConfig) (*model.ProviderConfig, error) {
	out := *config
	if config.SecretRef != "" {
		credential, err := ps.local.Open(config.SecretRef)
		if err != nil {
			return nil, fmt.Errorf("unseal provider credential: %w", err)
		}
		out.SecretRef = credential
	}
	return &out, nil
}
