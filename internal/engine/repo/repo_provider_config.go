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

package repo

import (
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-citadel/citadel/pkg/database"
	"gorm.io/gorm"
)

type IProviderConfigRepository interface {
	Save(config *model.ProviderConfig) error
	Get(accountId, configId string) (*model.ProviderConfig, error)
	List(accountId string) ([]*model.ProviderConfig, error)
	ListDefaults(accountId string, configType model.EncryptionType) ([]*model.ProviderConfig, error)
	Delete(accountId, configId string) error
}

type ProviderConfigRepo struct {
	database.IDatabase
}

func NewProviderConfigRepo(db database.IDatabase) IProviderConfigRepository {
	return &ProviderConfigRepo{IDatabase: db}
}

// Save upserts a config. When it is flagged default, the previous default of
// the same type in the account is demoted inside the same transaction.
func (pr *ProviderConfigRepo) Save(config *model.ProviderConfig) error {
	return pr.Database().Transaction(func(tx *gorm.DB) error {
		if config.IsDefault {
			if err := tx.Table(config.TableName()).
				Where("account_id = ? AND type = ? AND config_id <> ?", config.AccountId, config.Type, config.ConfigId).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Table(config.TableName()).Save(config).Error
	})
}

// Get loads one config scoped by account
func (pr *ProviderConfigRepo) Get(accountId, configId string) (*model.ProviderConfig, error) {
	var config model.ProviderConfig
	err := pr.Database().Table(config.TableName()).
		Where("account_id = ? AND config_id = ?", accountId, configId).
		First(&config).Error
	return &config, err
}

// List gets every KMS and Vault config of an account
func (pr *ProviderConfigRepo) List(accountId string) ([]*model.ProviderConfig, error) {
	var configs []*model.ProviderConfig
	err := pr.Database().Table(model.ProviderConfig{}.TableName()).
		Where("account_id = ?", accountId).
		Order("id DESC").
		Find(&configs).Error
	return configs, err
}

// ListDefaults gets the configs flagged default for one concrete type.
// More than one row here is an invariant violation the service fails on.
func (pr *ProviderConfigRepo) ListDefaults(accountId string, configType model.EncryptionType) ([]*model.ProviderConfig, error) {
	var configs []*model.ProviderConfig
	err := pr.Database().Table(model.ProviderConfig{}.TableName()).
		Where("account_id = ? AND type = ? AND is_default = ?", accountId, configType, true).
		Find(&configs).Error
	return configs, err
}

// Delete removes a config by config_id
func (pr *ProviderConfigRepo) Delete(accountId, configId string) error {
	return pr.Database().Table(model.ProviderConfig{}.TableName()).
		Where("account_id = ? AND config_id = ?", accountId, configId).
		Delete(&model.ProviderConfig{}).Error
}
