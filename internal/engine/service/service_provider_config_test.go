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
	"testing"

	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderConfigSaveValidatesFirst(t *testing.T) {
	env := newTestEnv(t)
	env.remote.validateErr = core.ErrInvalidProviderConfig

	_, err := env.services.ProviderConfig.Save(context.Background(), &model.ProviderConfig{
		AccountId: testAccount,
		Name:      "broken-kms",
		Type:      model.EncryptionTypeKMS,
	}, "bad-credential", "alice")

	assert.ErrorIs(t, err, core.ErrInvalidProviderConfig)
	assert.Empty(t, env.configs.configs, "nothing persisted on a failed probe")
}

func TestProviderConfigSaveRejectsLocal(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.services.ProviderConfig.Save(context.Background(), &model.ProviderConfig{
		AccountId: testAccount,
		Name:      "local",
		Type:      model.EncryptionTypeLocal,
	}, "", "alice")
	assert.Error(t, err)
}

func TestProviderConfigCredentialSealedAtRest(t *testing.T) {
	env := newTestEnv(t)

	configId, err := env.services.ProviderConfig.Save(context.Background(), &model.ProviderConfig{
		AccountId: testAccount,
		Name:      "prod-vault",
		Type:      model.EncryptionTypeVault,
		Endpoint:  "https://vault.test.local",
		KeyRef:    "secret/data/citadel",
	}, "hvs.token", "alice")
	require.NoError(t, err)

	stored := env.configs.configs[configId]
	require.NotEmpty(t, stored.SecretRef)
	assert.NotEqual(t, "hvs.token", stored.SecretRef)

	opened, err := env.local.Open(stored.SecretRef)
	require.NoError(t, err)
	assert.Equal(t, "hvs.token", opened)

	// The resolved config carries the plain credential, the row keeps the
	// sealed one.
	resolved, err := env.services.ProviderConfig.Resolve(testAccount, model.EncryptionTypeVault, configId)
	require.NoError(t, err)
	assert.Equal(t, "hvs.token", resolved.SecretRef)
	assert.NotEqual(t, stored.SecretRef, resolved.SecretRef)
}

func TestProviderConfigNewDefaultDemotesPrevious(t *testing.T) {
	env := newTestEnv(t)
	first := env.saveKmsConfig(t, testAccount, "kms-a")
	second := env.saveKmsConfig(t, testAccount, "kms-b")

	defaults, err := env.configs.ListDefaults(testAccount, model.EncryptionTypeKMS)
	require.NoError(t, err)
	require.Len(t, defaults, 1)
	assert.Equal(t, second, defaults[0].ConfigId)
	assert.False(t, env.configs.configs[first].IsDefault)
}

func TestDefaultResolutionOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// No configs at all: implicit LOCAL.
	config, err := env.services.ProviderConfig.Default(testAccount)
	require.NoError(t, err)
	assert.Equal(t, model.EncryptionTypeLocal, config.Type)
	assert.Equal(t, "Local Encryption", config.Name)

	kmsId := env.saveKmsConfig(t, testAccount, "prod-kms")
	config, err = env.services.ProviderConfig.Default(testAccount)
	require.NoError(t, err)
	assert.Equal(t, model.EncryptionTypeKMS, config.Type)
	assert.Equal(t, kmsId, config.ConfigId)

	// A default Vault config outranks KMS.
	vaultId, err := env.services.ProviderConfig.Save(ctx, &model.ProviderConfig{
		AccountId: testAccount,
		Name:      "prod-vault",
		Type:      model.EncryptionTypeVault,
		IsDefault: true,
	}, "hvs.token", "alice")
	require.NoError(t, err)

	config, err = env.services.ProviderConfig.Default(testAccount)
	require.NoError(t, err)
	assert.Equal(t, model.EncryptionTypeVault, config.Type)
	assert.Equal(t, vaultId, config.ConfigId)
}

func TestDefaultFailsOnDuplicateDefaults(t *testing.T) {
	env := newTestEnv(t)

	// Sneak two defaults past the demotion step.
	env.configs.put(&model.ProviderConfig{ConfigId: "kms-1", AccountId: testAccount, Name: "a", Type: model.EncryptionTypeKMS, IsDefault: true})
	env.configs.put(&model.ProviderConfig{ConfigId: "kms-2", AccountId: testAccount, Name: "b", Type: model.EncryptionTypeKMS, IsDefault: true})

	_, err := env.services.ProviderConfig.Default(testAccount)
	assert.ErrorIs(t, err, core.ErrDuplicateDefaultProvider)
}

func TestProviderConfigDeleteGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	configId := env.saveKmsConfig(t, testAccount, "prod-kms")

	recordId, err := env.services.Secret.Save(ctx, testAccount, "db-password", []byte("v"), nil, "alice")
	require.NoError(t, err)

	err = env.services.ProviderConfig.Delete(testAccount, configId)
	assert.ErrorIs(t, err, core.ErrSecretReferenced, "records still encrypted under the config")

	require.NoError(t, env.services.Secret.Delete(testAccount, recordId))

	// An unresolved transition also pins the config.
	env.transitions.transitions["tr-1"] = &model.SecretTransition{
		TransitionId: "tr-1",
		AccountId:    testAccount,
		FromType:     model.EncryptionTypeKMS,
		FromConfigId: configId,
		ToType:       model.EncryptionTypeLocal,
		Status:       model.TransitionStatusPending,
	}
	err = env.services.ProviderConfig.Delete(testAccount, configId)
	assert.ErrorIs(t, err, core.ErrSecretReferenced)

	delete(env.transitions.transitions, "tr-1")
	require.NoError(t, env.services.ProviderConfig.Delete(testAccount, configId))
	assert.Empty(t, env.configs.configs)
}

func TestProviderConfigDeleteUnknown(t *testing.T) {
	env := newTestEnv(t)
	err := env.services.ProviderConfig.Delete(testAccount, "missing")
	assert.ErrorIs(t, err, core.ErrInvalidProviderConfig)
}

func TestProviderConfigSaveUpdatesInPlace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	configId, err := env.services.ProviderConfig.Save(ctx, &model.ProviderConfig{
		AccountId: testAccount,
		Name:      "prod-kms",
		Type:      model.EncryptionTypeKMS,
		Endpoint:  "https://kms.eu-west-1.test",
		KeyRef:    "alias/citadel",
		IsDefault: true,
	}, "kms-secret-key", "alice")
	require.NoError(t, err)
	created := *env.configs.configs[configId]

	// Renaming without re-sending the credential keeps the stored one and
	// does not grow a second row.
	updatedId, err := env.services.ProviderConfig.Save(ctx, &model.ProviderConfig{
		AccountId: testAccount,
		ConfigId:  configId,
		Name:      "prod-kms-eu",
		Type:      model.EncryptionTypeKMS,
		Endpoint:  "https://kms.eu-west-1.test",
		KeyRef:    "alias/citadel",
		IsDefault: true,
	}, "", "bob")
	require.NoError(t, err)
	assert.Equal(t, configId, updatedId)
	require.Len(t, env.configs.configs, 1)

	stored := env.configs.configs[configId]
	assert.Equal(t, "prod-kms-eu", stored.Name)
	assert.Equal(t, created.CreatedBy, stored.CreatedBy, "creator survives updates")

	opened, err := env.local.Open(stored.SecretRef)
	require.NoError(t, err)
	assert.Equal(t, "kms-secret-key", opened, "omitted credential keeps the stored one")
}

func TestProviderConfigSaveUnknownUpdateTarget(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.services.ProviderConfig.Save(context.Background(), &model.ProviderConfig{
		AccountId: testAccount,
		ConfigId:  "missing",
		Name:      "ghost",
		Type:      model.EncryptionTypeKMS,
	}, "kms-secret-key", "alice")
	assert.ErrorIs(t, err, core.ErrInvalidProviderConfig)
	assert.Empty(t, env.configs.configs)
}

func TestResolveChecksType(t *testing.T) {
	env := newTestEnv(t)
	configId := env.saveKmsConfig(t, testAccount, "prod-kms")

	_, err := env.services.ProviderConfig.Resolve(testAccount, model.EncryptionTypeVault, configId)
	assert.ErrorIs(t, err, core.ErrInvalidProviderConfig)

	local, err := env.services.ProviderConfig.Resolve(testAccount, model.EncryptionTypeLocal, "")
	require.NoError(t, err)
	assert.Equal(t, model.EncryptionTypeLocal, local.Type)
}

func TestForRecordWithGoneConfig(t *testing.T) {
	env := newTestEnv(t)

	record := &model.EncryptedRecord{
		RecordId:         "rec-1",
		AccountId:        testAccount,
		EncryptionType:   model.EncryptionTypeKMS,
		ProviderConfigId: "gone",
	}
	_, err := env.services.ProviderConfig.ForRecord(record)
	assert.ErrorIs(t, err, core.ErrInvalidProviderConfig)
}
