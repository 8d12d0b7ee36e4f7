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
	"time"

	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-citadel/citadel/internal/engine/repo"
	"github.com/go-citadel/citadel/internal/pkg/delegate"
	"github.com/go-citadel/citadel/pkg/id"
	"github.com/go-citadel/citadel/pkg/log"
	"github.com/go-citadel/citadel/pkg/metrics"
	"github.com/go-citadel/citadel/pkg/retry"
	"gorm.io/gorm"
)

// TransitionEnqueuer publishes accepted transition requests for asynchronous
// processing; implemented by the asynq-backed transition queue.
type TransitionEnqueuer interface {
	EnqueueTransition(transitionId string) error
}

// TransitionService migrates every record under one provider config to
// another. Requests return immediately after validation; a single background
// worker per node performs the re-encryption off the queue.
type TransitionService struct {
	transitionRepo repo.ITransitionRepository
	recordRepo     repo.IEncryptedRecordRepository
	configs        *ProviderConfigService
	dispatcher     delegate.Delegate
	enqueuer       TransitionEnqueuer
}

func NewTransitionService(
	transitionRepo repo.ITransitionRepository,
	recordRepo repo.IEncryptedRecordRepository,
	configs *ProviderConfigService,
	dispatcher delegate.Delegate,
	enqueuer TransitionEnqueuer,
) *TransitionService {
	return &TransitionService{
		transitionRepo: transitionRepo,
		recordRepo:     recordRepo,
		configs:        configs,
		dispatcher:     dispatcher,
		enqueuer:       enqueuer,
	}
}

// Request validates both providers and enqueues one transition. A second
// request for the same (account, source provider) pair while the first is
// unresolved fails with ErrTransitionInProgress.
func (ts *TransitionService) Request(ctx context.Context, accountId string, fromType model.EncryptionType, fromConfigId string, toType model.EncryptionType, toConfigId string) (string, error) {
	if fromType == toType && fromConfigId == toConfigId {
		return "", errors.New("source and target provider are the same")
	}

	fromConfig, err := ts.configs.Resolve(accountId, fromType, fromConfigId)
	if err != nil {
		return "", err
	}
	toConfig, err := ts.configs.Resolve(accountId, toType, toConfigId)
	if err != nil {
		return "", err
	}

	for _, config := range []*model.ProviderConfig{fromConfig, toConfig} {
		if err := ts.dispatcher.Validate(ctx, config); err != nil {
			return "", err
		}
	}

	transition := &model.SecretTransition{
		TransitionId: id.GetUUID(),
		AccountId:    accountId,
		FromType:     fromType,
		FromConfigId: fromConfigId,
		ToType:       toType,
		ToConfigId:   toConfigId,
		Status:       model.TransitionStatusPending,
	}
	if err := ts.transitionRepo.Create(transition); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", core.ErrTransitionInProgress
		}
		return "", err
	}

	if err := ts.enqueuer.EnqueueTransition(transition.TransitionId); err != nil {
		// Roll back the claim so a later request is not locked out forever.
		if delErr := ts.transitionRepo.Delete(transition.TransitionId); delErr != nil {
			log.Errorf("failed to roll back transition %s: %v", transition.TransitionId, delErr)
		}
		return "", err
	}

	log.Infof("transition requested: %s (%s/%s -> %s/%s)", transition.TransitionId, fromType, fromConfigId, toType, toConfigId)
	return transition.TransitionId, nil
}

// Process is the worker-side handler. It is idempotent: a record whose
// providerConfigId already equals the target is skipped, so redelivery and
// restarts never double-encrypt. The per-record ciphertext swap is a single
// atomic field-group update.
func (ts *TransitionService) Process(ctx context.Context, transitionId string) error {
	transition, err := ts.transitionRepo.Get(transitionId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Completed by a previous delivery.
			log.Infof("transition %s already resolved, dropping redelivery", transitionId)
			return nil
		}
		return err
	}

	if err := ts.transitionRepo.UpdateStatus(transitionId, model.TransitionStatusProcessing); err != nil {
		return err
	}

	fromConfig, err := ts.configs.Resolve(transition.AccountId, transition.FromType, transition.FromConfigId)
	if err != nil {
		return err
	}
	toConfig, err := ts.configs.Resolve(transition.AccountId, transition.ToType, transition.ToConfigId)
	if err != nil {
		return err
	}

	records, err := ts.recordRepo.ListByProviderConfig(transition.AccountId, transition.FromConfigId)
	if err != nil {
		return err
	}

	migrated := 0
	for _, record := range records {
		if record.ProviderConfigId == transition.ToConfigId && record.EncryptionType == transition.ToType {
			continue
		}
		if err := ts.migrate(ctx, record, fromConfig, toConfig); err != nil {
			// Leave the row in place: remaining records stay decryptable
			// under the old provider and the request is redelivered.
			return fmt.Errorf("transition %s: record %s: %w", transitionId, record.RecordId, err)
		}
		migrated++
	}

	if err := ts.transitionRepo.Delete(transitionId); err != nil {
		return err
	}
	log.Infof("transition %s finished: %d records migrated", transitionId, migrated)
	return nil
}

func (ts *TransitionService) migrate(ctx context.Context, record *model.EncryptedRecord, fromConfig, toConfig *model.ProviderConfig) error {
	var plaintext []byte
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		plaintext, err = ts.dispatcher.Decrypt(ctx, record, fromConfig)
		return err
	}, retry.WithBackoff(retry.Exponential(time.Second, 30*time.Second)), retry.WithRetryIf(isTransient))
	if err != nil {
		return err
	}

	var result *delegate.EncryptResult
	err = retry.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = ts.dispatcher.Encrypt(ctx, &delegate.EncryptRequest{
			Name:      record.Name,
			Plaintext: plaintext,
			Config:    toConfig,
			Previous:  record,
		})
		return err
	}, retry.WithBackoff(retry.Exponential(time.Second, 30*time.Second)), retry.WithRetryIf(isTransient))
	if err != nil {
		return err
	}

	if err := ts.recordRepo.SwapCiphertext(
		record.AccountId, record.RecordId,
		toConfig.Type, toConfig.ConfigId,
		result.EncryptionKey, result.EncryptedValue,
	); err != nil {
		return err
	}

	metrics.TransitionRecords.Inc()
	metrics.EncryptOps.WithLabelValues(string(toConfig.Type)).Inc()
	return nil
}

// isTransient retries only delegate unreachability; credential rejections
// surface immediately.
func isTransient(err error) bool {
	return errors.Is(err, core.ErrProviderUnreachable)
}
