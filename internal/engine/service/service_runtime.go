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

	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-citadel/citadel/internal/engine/repo"
	"github.com/go-citadel/citadel/internal/pkg/delegate"
	"github.com/go-citadel/citadel/pkg/id"
	"github.com/go-citadel/citadel/pkg/log"
	"github.com/go-citadel/citadel/pkg/metrics"
	"gorm.io/gorm"
)

// RuntimeContext is the execution context a consumer supplies with each
// decryption; it lands verbatim in the usage log.
type RuntimeContext struct {
	WorkflowExecutionId string
	AppId               string
	EnvId               string
}

// RuntimeService is the only code path that materializes plaintext outside
// the provider boundary. Every decryption writes one usage-log row.
type RuntimeService struct {
	recordRepo   repo.IEncryptedRecordRepository
	usageLogRepo repo.IUsageLogRepository
	configs      *ProviderConfigService
	dispatcher   delegate.Delegate
}

func NewRuntimeService(
	recordRepo repo.IEncryptedRecordRepository,
	usageLogRepo repo.IUsageLogRepository,
	configs *ProviderConfigService,
	dispatcher delegate.Delegate,
) *RuntimeService {
	return &RuntimeService{
		recordRepo:   recordRepo,
		usageLogRepo: usageLogRepo,
		configs:      configs,
		dispatcher:   dispatcher,
	}
}

// Decrypt resolves every secret-bearing field of entity, writes the plaintext
// into the caller's transient fields, and logs one access per field. The
// plaintext is never persisted here.
func (rs *RuntimeService) Decrypt(ctx context.Context, accountId string, entity model.Encryptable, runtime RuntimeContext) error {
	for _, field := range entity.SecretFields() {
		if field.RecordId == "" {
			continue
		}

		record, err := rs.recordRepo.Get(accountId, field.RecordId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrSecretNotFound
			}
			return err
		}

		config, err := rs.configs.ForRecord(record)
		if err != nil {
			return err
		}

		plaintext, err := rs.dispatcher.Decrypt(ctx, record, config)
		if err != nil {
			log.Errorf("runtime decrypt of %s failed: %v", record.RecordId, err)
			return err
		}
		metrics.DecryptOps.WithLabelValues(string(record.EncryptionType)).Inc()

		field.Set(plaintext)
		rs.logAccess(record, runtime)
	}
	return nil
}

func (rs *RuntimeService) logAccess(record *model.EncryptedRecord, runtime RuntimeContext) {
	entry := &model.SecretUsageLog{
		LogId:               id.GetULID(),
		RecordId:            record.RecordId,
		AccountId:           record.AccountId,
		WorkflowExecutionId: runtime.WorkflowExecutionId,
		EnvId:               runtime.EnvId,
		AppId:               runtime.AppId,
	}
	if err := rs.usageLogRepo.Create(entry); err != nil {
		log.Errorf("failed to write usage log for %s: %v", record.RecordId, err)
		return
	}
	metrics.UsageLogWrites.Inc()
}

// UsageLogs returns the runtime access trail of one secret, newest first.
func (rs *RuntimeService) UsageLogs(accountId, recordId string) ([]*model.SecretUsageLog, error) {
	if _, err := rs.recordRepo.Get(accountId, recordId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrSecretNotFound
		}
		return nil, err
	}
	return rs.usageLogRepo.ListByRecord(accountId, recordId)
}
