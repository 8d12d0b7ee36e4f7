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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-citadel/citadel/internal/engine/repo"
	"github.com/go-citadel/citadel/internal/pkg/delegate"
	"github.com/go-citadel/citadel/pkg/datatype"
	"github.com/go-citadel/citadel/pkg/id"
	"github.com/go-citadel/citadel/pkg/log"
	"github.com/go-citadel/citadel/pkg/metrics"
	"gorm.io/gorm"
)

// SecretService orchestrates the encrypted-record lifecycle: provider
// resolution, encryption calls, persistence, and the audit change log.
type SecretService struct {
	recordRepo    repo.IEncryptedRecordRepository
	changeLogRepo repo.IChangeLogRepository
	usageLogRepo  repo.IUsageLogRepository
	configs       *ProviderConfigService
	dispatcher    delegate.Delegate
}

func NewSecretService(
	recordRepo repo.IEncryptedRecordRepository,
	changeLogRepo repo.IChangeLogRepository,
	usageLogRepo repo.IUsageLogRepository,
	configs *ProviderConfigService,
	dispatcher delegate.Delegate,
) *SecretService {
	return &SecretService{
		recordRepo:    recordRepo,
		changeLogRepo: changeLogRepo,
		usageLogRepo:  usageLogRepo,
		configs:       configs,
		dispatcher:    dispatcher,
	}
}

// Save encrypts value under the account's default provider and persists a new
// record. A nil value is legal and stores a key with no ciphertext.
func (ss *SecretService) Save(ctx context.Context, accountId, name string, value []byte, scopes []model.UsageScope, createdBy string) (string, error) {
	return ss.save(ctx, accountId, name, model.SecretTypeText, value, scopes, createdBy, model.ChangeCreated)
}

// SaveFile stores an uploaded file under the same contract as secret text.
func (ss *SecretService) SaveFile(ctx context.Context, accountId, name string, content io.Reader, scopes []model.UsageScope, createdBy string) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	return ss.save(ctx, accountId, name, model.SecretTypeFile, data, scopes, createdBy, model.ChangeFileUploaded)
}

func (ss *SecretService) save(ctx context.Context, accountId, name, secretType string, value []byte, scopes []model.UsageScope, createdBy, description string) (string, error) {
	if name == "" {
		return "", errors.New("name is required")
	}

	config, err := ss.configs.Default(accountId)
	if err != nil {
		return "", err
	}

	result, err := ss.dispatcher.Encrypt(ctx, &delegate.EncryptRequest{
		Name:      name,
		Plaintext: value,
		Config:    config,
	})
	if err != nil {
		log.Errorf("failed to encrypt secret %s: %v", name, err)
		return "", err
	}
	metrics.EncryptOps.WithLabelValues(string(config.Type)).Inc()

	record := &model.EncryptedRecord{
		RecordId:         id.GetUUID(),
		AccountId:        accountId,
		Name:             name,
		SecretType:       secretType,
		EncryptionType:   config.Type,
		ProviderConfigId: config.ConfigId,
		EncryptionKey:    result.EncryptionKey,
		EncryptedValue:   result.EncryptedValue,
		Enabled:          true,
		ParentIds:        datatype.NewStringSet(),
		AppIds:           datatype.StringList{},
		ServiceIds:       datatype.StringList{},
		EnvIds:           datatype.StringList{},
		ReferencedIds:    datatype.StringList{},
		SearchTags:       datatype.CountMap{},
		CreatedBy:        createdBy,
	}
	if err := setScopes(record, scopes); err != nil {
		return "", err
	}
	syncKeywords(record)

	if err := ss.recordRepo.Create(record); err != nil {
		return "", err
	}

	ss.appendChangeLog(record, description, createdBy)
	log.Infof("secret created: %s (%s, provider %s)", record.RecordId, secretType, config.Type)
	return record.RecordId, nil
}

// Update applies name/value/scope changes. Value equal to the masked sentinel
// (or nil) keeps the existing ciphertext; re-encryption happens only when the
// value actually changes, under the record's current provider.
func (ss *SecretService) Update(ctx context.Context, accountId, recordId, newName string, newValue []byte, scopes []model.UsageScope, changedBy string) error {
	return ss.update(ctx, accountId, recordId, newName, newValue, scopes, changedBy, false)
}

// UpdateFile is Update specialized for binary content.
func (ss *SecretService) UpdateFile(ctx context.Context, accountId, recordId, newName string, content io.Reader, scopes []model.UsageScope, changedBy string) error {
	var data []byte
	if content != nil {
		var err error
		if data, err = io.ReadAll(content); err != nil {
			return err
		}
	}
	return ss.update(ctx, accountId, recordId, newName, data, scopes, changedBy, true)
}

func (ss *SecretService) update(ctx context.Context, accountId, recordId, newName string, newValue []byte, scopes []model.UsageScope, changedBy string, isFile bool) error {
	record, err := ss.get(accountId, recordId)
	if err != nil {
		return err
	}

	nameChanged := newName != "" && newName != record.Name
	valueChanged := newValue != nil && string(newValue) != model.MaskedValue

	// nil means the caller did not touch the restrictions, an empty
	// non-nil slice clears them
	scopesChanged := false
	if scopes != nil {
		if scopesChanged, err = scopesDiffer(record, scopes); err != nil {
			return err
		}
	}

	if nameChanged {
		record.Name = newName
	}

	if valueChanged {
		config, err := ss.configs.ForRecord(record)
		if err != nil {
			return err
		}
		result, err := ss.dispatcher.Encrypt(ctx, &delegate.EncryptRequest{
			Name:      record.Name,
			Plaintext: newValue,
			Config:    config,
			Previous:  record,
		})
		if err != nil {
			log.Errorf("failed to re-encrypt secret %s: %v", recordId, err)
			return err
		}
		metrics.EncryptOps.WithLabelValues(string(config.Type)).Inc()
		record.EncryptionKey = result.EncryptionKey
		record.EncryptedValue = result.EncryptedValue
	}

	if scopesChanged {
		if err := replaceScopes(record, scopes); err != nil {
			return err
		}
	}
	syncKeywords(record)

	// Metadata-only updates must not write the ciphertext columns back; the
	// loaded pair may already have been replaced by a transition.
	if valueChanged {
		err = ss.recordRepo.Save(record)
	} else {
		err = ss.recordRepo.SaveIndex(record)
	}
	if err != nil {
		return err
	}

	if nameChanged || valueChanged {
		ss.appendChangeLog(record, changeDescription(nameChanged, valueChanged, isFile), changedBy)
	}
	if scopesChanged {
		ss.appendChangeLog(record, model.ChangeUsageRestrictions, changedBy)
	}
	log.Infof("secret updated: %s (name=%t value=%t scopes=%t)", recordId, nameChanged, valueChanged, scopesChanged)
	return nil
}

// Delete removes the record and its logs. Rejected while any entity still
// references the secret.
func (ss *SecretService) Delete(accountId, recordId string) error {
	record, err := ss.get(accountId, recordId)
	if err != nil {
		return err
	}

	if len(record.ParentIds) > 0 {
		return fmt.Errorf("%w: %d entities still reference secret %s", core.ErrSecretReferenced, len(record.ParentIds), recordId)
	}

	if err := ss.recordRepo.Delete(accountId, recordId); err != nil {
		return err
	}
	if err := ss.changeLogRepo.DeleteByRecord(recordId); err != nil {
		log.Errorf("failed to cascade change logs of %s: %v", recordId, err)
	}
	if err := ss.usageLogRepo.DeleteByRecord(recordId); err != nil {
		log.Errorf("failed to cascade usage logs of %s: %v", recordId, err)
	}
	log.Infof("secret deleted: %s", recordId)
	return nil
}

// Get returns the record with key material masked.
func (ss *SecretService) Get(accountId, recordId string) (*model.EncryptedRecord, error) {
	record, err := ss.get(accountId, recordId)
	if err != nil {
		return nil, err
	}
	record.Mask()
	return record, nil
}

// ChangeLogs returns the audit trail, newest first.
func (ss *SecretService) ChangeLogs(accountId, recordId string) ([]*model.SecretChangeLog, error) {
	if _, err := ss.get(accountId, recordId); err != nil {
		return nil, err
	}
	return ss.changeLogRepo.ListByRecord(accountId, recordId)
}

// List pages through the account's records, key material always masked. Usage
// stats are computed only on request to keep plain listing cheap.
func (ss *SecretService) List(accountId, secretType, keyword string, pageNum, pageSize int, includeUsageStats bool) ([]*model.EncryptedRecord, int64, error) {
	if pageNum <= 0 {
		pageNum = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	records, total, err := ss.recordRepo.List(accountId, secretType, keyword, pageNum, pageSize)
	if err != nil {
		return nil, 0, err
	}

	for _, record := range records {
		record.Mask()
		if !includeUsageStats {
			continue
		}
		record.SetupUsage = len(record.ParentIds)
		if record.RunTimeUsage, err = ss.usageLogRepo.CountByRecord(record.RecordId); err != nil {
			return nil, 0, err
		}
		if record.ChangeLog, err = ss.changeLogRepo.CountByRecord(record.RecordId); err != nil {
			return nil, 0, err
		}
		if config, err := ss.configs.ForRecord(record); err == nil {
			record.EncryptedBy = config.Name
		}
	}
	return records, total, nil
}

// EncryptionDetails inspects an entity for secret-bearing fields and returns
// the directives the runtime decryptor needs. It does not decrypt.
func (ss *SecretService) EncryptionDetails(accountId string, entity model.Encryptable) ([]model.DecryptDirective, error) {
	fields := entity.SecretFields()
	directives := make([]model.DecryptDirective, 0, len(fields))
	for _, field := range fields {
		if field.RecordId == "" {
			continue
		}
		record, err := ss.get(accountId, field.RecordId)
		if err != nil {
			return nil, err
		}
		directives = append(directives, model.DecryptDirective{
			FieldName:        field.Name,
			RecordId:         record.RecordId,
			EncryptionType:   record.EncryptionType,
			ProviderConfigId: record.ProviderConfigId,
		})
	}
	return directives, nil
}

func (ss *SecretService) get(accountId, recordId string) (*model.EncryptedRecord, error) {
	record, err := ss.recordRepo.Get(accountId, recordId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrSecretNotFound
		}
		return nil, err
	}
	return record, nil
}

func (ss *SecretService) appendChangeLog(record *model.EncryptedRecord, description, actor string) {
	entry := &model.SecretChangeLog{
		LogId:       id.GetULID(),
		RecordId:    record.RecordId,
		AccountId:   record.AccountId,
		Description: description,
		ChangedBy:   actor,
	}
	if err := ss.changeLogRepo.Create(entry); err != nil {
		log.Errorf("failed to write change log %q for %s: %v", description, record.RecordId, err)
	}
}

// changeDescription picks from the closed description set by what changed.
func changeDescription(nameChanged, valueChanged, isFile bool) string {
	if isFile {
		return model.ChangeNameAndFile
	}
	if valueChanged && !nameChanged {
		return model.ChangePassword
	}
	return model.ChangeNameAndValue
}

// setScopes installs usage scopes on a fresh record and seeds their names
// into the search index.
func setScopes(record *model.EncryptedRecord, scopes []model.UsageScope) error {
	if len(scopes) == 0 {
		record.UsageScopes = nil
		return nil
	}
	data, err := sonic.Marshal(scopes)
	if err != nil {
		return err
	}
	record.UsageScopes = data
	for _, scope := range scopes {
		seedScope(record, scope, true)
	}
	return nil
}

// replaceScopes swaps the scope seeds: old tags out, new tags in.
func replaceScopes(record *model.EncryptedRecord, scopes []model.UsageScope) error {
	old, err := scopesOf(record)
	if err != nil {
		return err
	}
	for _, scope := range old {
		seedScope(record, scope, false)
	}
	return setScopes(record, scopes)
}

func seedScope(record *model.EncryptedRecord, scope model.UsageScope, add bool) {
	for _, name := range []string{scope.AppName, scope.EnvName} {
		if name == "" {
			continue
		}
		if add {
			record.SearchTags.Inc(name)
		} else {
			record.SearchTags.Dec(name)
		}
	}
}

func scopesOf(record *model.EncryptedRecord) ([]model.UsageScope, error) {
	if record.UsageScopes.IsNull() {
		return nil, nil
	}
	var scopes []model.UsageScope
	if err := sonic.Unmarshal(record.UsageScopes, &scopes); err != nil {
		return nil, err
	}
	return scopes, nil
}

func scopesDiffer(record *model.EncryptedRecord, scopes []model.UsageScope) (bool, error) {
	current, err := scopesOf(record)
	if err != nil {
		return false, err
	}
	if len(current) != len(scopes) {
		return true, nil
	}
	if len(scopes) == 0 {
		return false, nil
	}
	a, err := sonic.Marshal(current)
	if err != nil {
		return false, err
	}
	b, err := sonic.Marshal(scopes)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(a, b), nil
}
