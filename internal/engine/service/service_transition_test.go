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
	"testing"

	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transitionFixture seeds an account with local secrets and a KMS config to
// migrate them to.
func transitionFixture(t *testing.T, env *testEnv, secrets int) (kmsConfigId string, plaintexts map[string][]byte) {
	t.Helper()
	ctx := context.Background()

	plaintexts = make(map[string][]byte)
	for i := 0; i < secrets; i++ {
		value := []byte(fmt.Sprintf("plaintext-%d", i))
		recordId, err := env.services.Secret.Save(ctx, testAccount, fmt.Sprintf("secret-%d", i), value, nil, "alice")
		require.NoError(t, err)
		plaintexts[recordId] = value
	}

	// The config must not be default, or new secrets above would already
	// land on KMS.
	kmsConfigId, err := env.services.ProviderConfig.Save(ctx, &model.ProviderConfig{
		AccountId: testAccount,
		Name:      "prod-kms",
		Type:      model.EncryptionTypeKMS,
		IsDefault: false,
	}, "kms-secret-key", "alice")
	require.NoError(t, err)
	return kmsConfigId, plaintexts
}

func TestTransitionRequestEnqueues(t *testing.T) {
	env := newTestEnv(t)
	kmsId, _ := transitionFixture(t, env, 1)

	transitionId, err := env.services.Transition.Request(context.Background(), testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, kmsId)
	require.NoError(t, err)
	require.NotEmpty(t, transitionId)

	assert.Equal(t, []string{transitionId}, env.enqueuer.enqueued)
	stored := env.transitions.transitions[transitionId]
	require.NotNil(t, stored)
	assert.Equal(t, model.TransitionStatusPending, stored.Status)
}

func TestTransitionRequestSameProviderRejected(t *testing.T) {
	env := newTestEnv(t)
	kmsId, _ := transitionFixture(t, env, 0)

	_, err := env.services.Transition.Request(context.Background(), testAccount,
		model.EncryptionTypeKMS, kmsId, model.EncryptionTypeKMS, kmsId)
	assert.Error(t, err)
	assert.Empty(t, env.enqueuer.enqueued)
}

func TestTransitionRequestUnknownTargetRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.services.Transition.Request(context.Background(), testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, "missing")
	assert.ErrorIs(t, err, core.ErrInvalidProviderConfig)
}

func TestTransitionRequestDuplicateInProgress(t *testing.T) {
	env := newTestEnv(t)
	kmsId, _ := transitionFixture(t, env, 1)
	ctx := context.Background()

	_, err := env.services.Transition.Request(ctx, testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, kmsId)
	require.NoError(t, err)

	_, err = env.services.Transition.Request(ctx, testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, kmsId)
	assert.ErrorIs(t, err, core.ErrTransitionInProgress)
	assert.Len(t, env.enqueuer.enqueued, 1)
}

func TestTransitionRequestEnqueueFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	kmsId, _ := transitionFixture(t, env, 1)
	env.enqueuer.err = errors.New("redis down")

	_, err := env.services.Transition.Request(context.Background(), testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, kmsId)
	require.Error(t, err)
	assert.Empty(t, env.transitions.transitions, "the claim row must not outlive the failed enqueue")

	// With the row gone a later request goes through.
	env.enqueuer.err = nil
	_, err = env.services.Transition.Request(context.Background(), testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, kmsId)
	assert.NoError(t, err)
}

func TestTransitionProcessMigratesPreservingPlaintext(t *testing.T) {
	env := newTestEnv(t)
	kmsId, plaintexts := transitionFixture(t, env, 3)
	ctx := context.Background()

	transitionId, err := env.services.Transition.Request(ctx, testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, kmsId)
	require.NoError(t, err)

	require.NoError(t, env.services.Transition.Process(ctx, transitionId))

	for recordId, want := range plaintexts {
		stored := env.records.records[recordId]
		assert.Equal(t, model.EncryptionTypeKMS, stored.EncryptionType)
		assert.Equal(t, kmsId, stored.ProviderConfigId)

		connector := &testConnector{recordId: recordId}
		require.NoError(t, env.services.Runtime.Decrypt(ctx, testAccount, connector, RuntimeContext{}))
		assert.Equal(t, want, connector.password)
	}

	assert.Empty(t, env.transitions.transitions, "resolved transitions are removed")
}

func TestTransitionProcessRedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	kmsId, _ := transitionFixture(t, env, 2)
	ctx := context.Background()

	transitionId, err := env.services.Transition.Request(ctx, testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, kmsId)
	require.NoError(t, err)

	require.NoError(t, env.services.Transition.Process(ctx, transitionId))
	encrypts := env.remote.encrypts

	// A redelivered message finds the row gone and drops out cleanly.
	require.NoError(t, env.services.Transition.Process(ctx, transitionId))
	assert.Equal(t, encrypts, env.remote.encrypts, "no record is encrypted twice")
}

func TestTransitionProcessFailureLeavesRowForRetry(t *testing.T) {
	env := newTestEnv(t)
	kmsId, plaintexts := transitionFixture(t, env, 3)
	ctx := context.Background()

	transitionId, err := env.services.Transition.Request(ctx, testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, kmsId)
	require.NoError(t, err)

	// First record migrates, the second hits a credential rejection, which
	// is not retried.
	env.remote.encryptHook = func(call int) error {
		if call >= 2 {
			return core.ErrInvalidProviderConfig
		}
		return nil
	}
	err = env.services.Transition.Process(ctx, transitionId)
	require.ErrorIs(t, err, core.ErrInvalidProviderConfig)
	require.Contains(t, env.transitions.transitions, transitionId)
	assert.Equal(t, model.TransitionStatusProcessing, env.transitions.transitions[transitionId].Status)

	var migrated int
	for recordId := range plaintexts {
		if env.records.records[recordId].EncryptionType == model.EncryptionTypeKMS {
			migrated++
		}
	}
	assert.Equal(t, 1, migrated)

	// The redelivery picks up where the failure left off.
	env.remote.encryptHook = nil
	require.NoError(t, env.services.Transition.Process(ctx, transitionId))
	assert.Empty(t, env.transitions.transitions)

	for recordId, want := range plaintexts {
		connector := &testConnector{recordId: recordId}
		require.NoError(t, env.services.Runtime.Decrypt(ctx, testAccount, connector, RuntimeContext{}))
		assert.Equal(t, want, connector.password)
	}
}

func TestTransitionProcessRetriesUnreachableProvider(t *testing.T) {
	env := newTestEnv(t)
	kmsId, _ := transitionFixture(t, env, 1)
	ctx := context.Background()

	transitionId, err := env.services.Transition.Request(ctx, testAccount,
		model.EncryptionTypeLocal, "", model.EncryptionTypeKMS, kmsId)
	require.NoError(t, err)

	// One transient failure, then the provider is back.
	env.remote.encryptHook = func(call int) error {
		if call == 1 {
			return core.ErrProviderUnreachable
		}
		return nil
	}
	require.NoError(t, env.services.Transition.Process(ctx, transitionId))
	assert.Empty(t, env.transitions.transitions)
}
