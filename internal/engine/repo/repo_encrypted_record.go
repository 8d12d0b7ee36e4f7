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
)

type IEncryptedRecordRepository interface {
	Create(record *model.EncryptedRecord) error
	Get(accountId, recordId string) (*model.EncryptedRecord, error)
	Save(record *model.EncryptedRecord) error
	SaveIndex(record *model.EncryptedRecord) error
	Delete(accountId, recordId string) error
	List(accountId, secretType, keyword string, pageNum, pageSize int) ([]*model.EncryptedRecord, int64, error)
	ListAll(accountId string) ([]*model.EncryptedRecord, error)
	ListByProviderConfig(accountId, providerConfigId string) ([]*model.EncryptedRecord, error)
	CountByProviderConfig(providerConfigId string) (int64, error)
	SwapCiphertext(accountId, recordId string, encryptionType model.EncryptionType, providerConfigId, encryptionKey string, encryptedValue []byte) error
}

type EncryptedRecordRepo struct {
	database.IDatabase
}

func NewEncryptedRecordRepo(db database.IDatabase) IEncryptedRecordRepository {
	return &EncryptedRecordRepo{IDatabase: db}
}

// Create inserts a new encrypted record
func (er *EncryptedRecordRepo) Create(record *model.EncryptedRecord) error {
	return er.Database().Table(record.TableName()).Create(record).Error
}

// Get loads one record scoped by account
func (er *EncryptedRecordRepo) Get(accountId, recordId string) (*model.EncryptedRecord, error) {
	var record model.EncryptedRecord
	err := er.Database().Table(record.TableName()).
		Where("account_id = ? AND record_id = ?", accountId, recordId).
		First(&record).Error
	return &record, err
}

// Save writes back every field of a previously loaded record
func (er *EncryptedRecordRepo) Save(record *model.EncryptedRecord) error {
	return er.Database().Table(record.TableName()).Save(record).Error
}

// SaveIndex writes only the name and the derived index columns. Binding and
// rebuild go through here so their read-modify-write can never put stale
// ciphertext back over a concurrent SwapCiphertext.
func (er *EncryptedRecordRepo) SaveIndex(record *model.EncryptedRecord) error {
	return er.Database().Table(record.TableName()).
		Where("account_id = ? AND record_id = ?", record.AccountId, record.RecordId).
		Updates(map[string]interface{}{
			"name":           record.Name,
			"parent_ids":     record.ParentIds,
			"app_ids":        record.AppIds,
			"service_ids":    record.ServiceIds,
			"env_ids":        record.EnvIds,
			"referenced_ids": record.ReferencedIds,
			"search_tags":    record.SearchTags,
			"keywords":       record.Keywords,
			"usage_scopes":   &record.UsageScopes,
		}).Error
}

// Delete removes a record by record_id
func (er *EncryptedRecordRepo) Delete(accountId, recordId string) error {
	return er.Database().Table(model.EncryptedRecord{}.TableName()).
		Where("account_id = ? AND record_id = ?", accountId, recordId).
		Delete(&model.EncryptedRecord{}).Error
}

// List gets records with pagination, optionally filtered by secret type and
// a contains-match against the keyword index. Key material is not selected.
func (er *EncryptedRecordRepo) List(accountId, secretType, keyword string, pageNum, pageSize int) ([]*model.EncryptedRecord, int64, error) {
	var records []*model.EncryptedRecord
	var total int64

	query := er.Database().Table(model.EncryptedRecord{}.TableName()).
		Where("account_id = ?", accountId)

	if secretType != "" {
		query = query.Where("secret_type = ?", secretType)
	}
	if keyword != "" {
		query = query.Where("keywords LIKE ?", "%"+keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (pageNum - 1) * pageSize
	err := query.
		Select("id", "record_id", "account_id", "name", "secret_type", "encryption_type",
			"provider_config_id", "enabled", "parent_ids", "app_ids", "service_ids", "env_ids",
			"referenced_ids", "search_tags", "keywords", "usage_scopes", "created_by",
			"created_at", "updated_at").
		Order("id DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&records).Error

	return records, total, err
}

// ListAll gets every record of an account (index rebuild)
func (er *EncryptedRecordRepo) ListAll(accountId string) ([]*model.EncryptedRecord, error) {
	var records []*model.EncryptedRecord
	err := er.Database().Table(model.EncryptedRecord{}.TableName()).
		Where("account_id = ?", accountId).
		Find(&records).Error
	return records, err
}

// ListByProviderConfig gets records currently encrypted under one provider config
func (er *EncryptedRecordRepo) ListByProviderConfig(accountId, providerConfigId string) ([]*model.EncryptedRecord, error) {
	var records []*model.EncryptedRecord
	err := er.Database().Table(model.EncryptedRecord{}.TableName()).
		Where("account_id = ? AND provider_config_id = ?", accountId, providerConfigId).
		Find(&records).Error
	return records, err
}

// CountByProviderConfig counts records still pointing at a provider config
func (er *EncryptedRecordRepo) CountByProviderConfig(providerConfigId string) (int64, error) {
	var total int64
	err := er.Database().Table(model.EncryptedRecord{}.TableName()).
		Where("provider_config_id = ?", providerConfigId).
		Count(&total).Error
	return total, err
}

// SwapCiphertext replaces the provider/key/value group in a single UPDATE so
// a concurrent reader sees either the old or the new pair, never a mix.
func (er *EncryptedRecordRepo) SwapCiphertext(accountId, recordId string, encryptionType model.EncryptionType, providerConfigId, encryptionKey string, encryptedValue []byte) error {
	return er.Database().Table(model.EncryptedRecord{}.TableName()).
		Where("account_id = ? AND record_id = ?", accountId, recordId).
		Updates(map[string]interface{}{
			"encryption_type":    encryptionType,
			"provider_config_id": providerConfigId,
			"encryption_key":     encryptionKey,
			"encrypted_value":    encryptedValue,
		}).Error
}
