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
	"fmt"
	"strings"
	"testing"

	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-citadel/citadel/internal/engine/repo"
	"github.com/go-citadel/citadel/internal/pkg/delegate"
	"github.com/go-citadel/citadel/pkg/datatype"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// In-memory repositories backing the service tests. They mimic the gorm
// behavior the services rely on: fresh copies on read, ErrRecordNotFound on
// misses, ErrDuplicatedKey on the transition unique index.

type fakeRecordRepo struct {
	records map[string]*model.EncryptedRecord
	order   []string

	// afterGet runs once after the next Get, between a caller's load and its
	// write-back. Used to interleave concurrent writes.
	afterGet func()
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]*model.EncryptedRecord)}
}

func cloneRecord(r *model.EncryptedRecord) *model.EncryptedRecord {
	out := *r
	out.ParentIds = datatype.NewStringSet(r.ParentIds.Members()...)
	out.AppIds = append(datatype.StringList{}, r.AppIds...)
	out.ServiceIds = append(datatype.StringList{}, r.ServiceIds...)
	out.EnvIds = append(datatype.StringList{}, r.EnvIds...)
	out.ReferencedIds = append(datatype.StringList{}, r.ReferencedIds...)
	out.SearchTags = datatype.CountMap{}
	for k, v := range r.SearchTags {
		out.SearchTags[k] = v
	}
	out.Keywords = append(datatype.StringList{}, r.Keywords...)
	out.UsageScopes = append(datatype.JSON(nil), r.UsageScopes...)
	out.EncryptedValue = append([]byte(nil), r.EncryptedValue...)
	return &out
}

func (f *fakeRecordRepo) Create(record *model.EncryptedRecord) error {
	f.records[record.RecordId] = cloneRecord(record)
	f.order = append(f.order, record.RecordId)
	return nil
}

func (f *fakeRecordRepo) Get(accountId, recordId string) (*model.EncryptedRecord, error) {
	record, ok := f.records[recordId]
	if !ok || record.AccountId != accountId {
		return nil, gorm.ErrRecordNotFound
	}
	loaded := cloneRecord(record)
	if f.afterGet != nil {
		hook := f.afterGet
		f.afterGet = nil
		hook()
	}
	return loaded, nil
}

func (f *fakeRecordRepo) Save(record *model.EncryptedRecord) error {
	if _, ok := f.records[record.RecordId]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.records[record.RecordId] = cloneRecord(record)
	return nil
}

func (f *fakeRecordRepo) SaveIndex(record *model.EncryptedRecord) error {
	stored, ok := f.records[record.RecordId]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	clone := cloneRecord(record)
	stored.Name = clone.Name
	stored.ParentIds = clone.ParentIds
	stored.AppIds = clone.AppIds
	stored.ServiceIds = clone.ServiceIds
	stored.EnvIds = clone.EnvIds
	stored.ReferencedIds = clone.ReferencedIds
	stored.SearchTags = clone.SearchTags
	stored.Keywords = clone.Keywords
	stored.UsageScopes = clone.UsageScopes
	return nil
}

func (f *fakeRecordRepo) Delete(accountId, recordId string) error {
	delete(f.records, recordId)
	for i, id := range f.order {
		if id == recordId {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRecordRepo) List(accountId, secretType, keyword string, pageNum, pageSize int) ([]*model.EncryptedRecord, int64, error) {
	var matched []*model.EncryptedRecord
	for i := len(f.order) - 1; i >= 0; i-- {
		record := f.records[f.order[i]]
		if record.AccountId != accountId {
			continue
		}
		if secretType != "" && record.SecretType != secretType {
			continue
		}
		if keyword != "" && !strings.Contains(strings.Join(record.Keywords, ","), keyword) {
			continue
		}
		matched = append(matched, cloneRecord(record))
	}
	total := int64(len(matched))
	offset := (pageNum - 1) * pageSize
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (f *fakeRecordRepo) ListAll(accountId string) ([]*model.EncryptedRecord, error) {
	var out []*model.EncryptedRecord
	for _, id := range f.order {
		if record := f.records[id]; record.AccountId == accountId {
			out = append(out, cloneRecord(record))
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ListByProviderConfig(accountId, providerConfigId string) ([]*model.EncryptedRecord, error) {
	var out []*model.EncryptedRecord
	for _, id := range f.order {
		record := f.records[id]
		if record.AccountId == accountId && record.ProviderConfigId == providerConfigId {
			out = append(out, cloneRecord(record))
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) CountByProviderConfig(providerConfigId string) (int64, error) {
	var total int64
	for _, record := range f.records {
		if record.ProviderConfigId == providerConfigId {
			total++
		}
	}
	return total, nil
}

func (f *fakeRecordRepo) SwapCiphertext(accountId, recordId string, encryptionType model.EncryptionType, providerConfigId, encryptionKey string, encryptedValue []byte) error {
	record, ok := f.records[recordId]
	if !ok || record.AccountId != accountId {
		return gorm.ErrRecordNotFound
	}
	record.EncryptionType = encryptionType
	record.ProviderConfigId = providerConfigId
	record.EncryptionKey = encryptionKey
	record.EncryptedValue = append([]byte(nil), encryptedValue...)
	return nil
}

type fakeConfigRepo struct {
	configs map[string]*model.ProviderConfig
	order   []string
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{configs: make(map[string]*model.ProviderConfig)}
}

// put bypasses the demotion step, used to force invariant violations.
func (f *fakeConfigRepo) put(config *model.ProviderConfig) {
	c := *config
	if _, ok := f.configs[c.ConfigId]; !ok {
		f.order = append(f.order, c.ConfigId)
	}
	f.configs[c.ConfigId] = &c
}

func (f *fakeConfigRepo) Save(config *model.ProviderConfig) error {
	if config.IsDefault {
		for _, other := range f.configs {
			if other.AccountId == config.AccountId && other.Type == config.Type && other.ConfigId != config.ConfigId {
				other.IsDefault = false
			}
		}
	}
	f.put(config)
	return nil
}

func (f *fakeConfigRepo) Get(accountId, configId string) (*model.ProviderConfig, error) {
	config, ok := f.configs[configId]
	if !ok || config.AccountId != accountId {
		return nil, gorm.ErrRecordNotFound
	}
	c := *config
	return &c, nil
}

func (f *fakeConfigRepo) List(accountId string) ([]*model.ProviderConfig, error) {
	var out []*model.ProviderConfig
	for i := len(f.order) - 1; i >= 0; i-- {
		if config := f.configs[f.order[i]]; config.AccountId == accountId {
			c := *config
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeConfigRepo) ListDefaults(accountId string, configType model.EncryptionType) ([]*model.ProviderConfig, error) {
	var out []*model.ProviderConfig
	for _, id := range f.order {
		config := f.configs[id]
		if config.AccountId == accountId && config.Type == configType && config.IsDefault {
			c := *config
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeConfigRepo) Delete(accountId, configId string) error {
	delete(f.configs, configId)
	for i, id := range f.order {
		if id == configId {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

type fakeChangeLogRepo struct {
	entries []*model.SecretChangeLog
}

func (f *fakeChangeLogRepo) Create(entry *model.SecretChangeLog) error {
	e := *entry
	f.entries = append(f.entries, &e)
	return nil
}

func (f *fakeChangeLogRepo) ListByRecord(accountId, recordId string) ([]*model.SecretChangeLog, error) {
	var out []*model.SecretChangeLog
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].AccountId == accountId && f.entries[i].RecordId == recordId {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeChangeLogRepo) CountByRecord(recordId string) (int64, error) {
	var total int64
	for _, e := range f.entries {
		if e.RecordId == recordId {
			total++
		}
	}
	return total, nil
}

func (f *fakeChangeLogRepo) DeleteByRecord(recordId string) error {
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.RecordId != recordId {
			kept = append(kept, e)
		}
	}
	f.entries = kept
	return nil
}

type fakeUsageLogRepo struct {
	entries []*model.SecretUsageLog
}

func (f *fakeUsageLogRepo) Create(entry *model.SecretUsageLog) error {
	e := *entry
	f.entries = append(f.entries, &e)
	return nil
}

func (f *fakeUsageLogRepo) ListByRecord(accountId, recordId string) ([]*model.SecretUsageLog, error) {
	var out []*model.SecretUsageLog
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].AccountId == accountId && f.entries[i].RecordId == recordId {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeUsageLogRepo) CountByRecord(recordId string) (int64, error) {
	var total int64
	for _, e := range f.entries {
		if e.RecordId == recordId {
			total++
		}
	}
	return total, nil
}

func (f *fakeUsageLogRepo) DeleteByRecord(recordId string) error {
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.RecordId != recordId {
			kept = append(kept, e)
		}
	}
	f.entries = kept
	return nil
}

type fakeTransitionRepo struct {
	transitions map[string]*model.SecretTransition
}

func newFakeTransitionRepo() *fakeTransitionRepo {
	return &fakeTransitionRepo{transitions: make(map[string]*model.SecretTransition)}
}

func (f *fakeTransitionRepo) Create(transition *model.SecretTransition) error {
	for _, t := range f.transitions {
		if t.AccountId == transition.AccountId && t.FromConfigId == transition.FromConfigId {
			return gorm.ErrDuplicatedKey
		}
	}
	t := *transition
	f.transitions[t.TransitionId] = &t
	return nil
}

func (f *fakeTransitionRepo) Get(transitionId string) (*model.SecretTransition, error) {
	transition, ok := f.transitions[transitionId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	t := *transition
	return &t, nil
}

func (f *fakeTransitionRepo) UpdateStatus(transitionId, status string) error {
	transition, ok := f.transitions[transitionId]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	transition.Status = status
	return nil
}

func (f *fakeTransitionRepo) Delete(transitionId string) error {
	delete(f.transitions, transitionId)
	return nil
}

func (f *fakeTransitionRepo) ExistsForProvider(accountId, providerConfigId string) (bool, error) {
	for _, t := range f.transitions {
		if t.AccountId == accountId && (t.FromConfigId == providerConfigId || t.ToConfigId == providerConfigId) {
			return true, nil
		}
	}
	return false, nil
}

type fakeEnqueuer struct {
	enqueued []string
	err      error
}

func (f *fakeEnqueuer) EnqueueTransition(transitionId string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, transitionId)
	return nil
}

// fakeRemote stands in for the HTTP delegate: it keeps plaintext by key
// reference so decrypt round-trips without a live KMS or Vault.
type fakeRemote struct {
	store       map[string][]byte
	seq         int
	encrypts    int
	decrypts    int
	validates   int
	encryptHook func(call int) error
	validateErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{store: make(map[string][]byte)}
}

func (f *fakeRemote) Encrypt(_ context.Context, req *delegate.EncryptRequest) (*delegate.EncryptResult, error) {
	f.encrypts++
	if f.encryptHook != nil {
		if err := f.encryptHook(f.encrypts); err != nil {
			return nil, err
		}
	}
	f.seq++
	key := fmt.Sprintf("%s/keys/%d", req.Config.Type, f.seq)
	result := &delegate.EncryptResult{EncryptionKey: key}
	if req.Plaintext == nil {
		return result, nil
	}
	f.store[key] = append([]byte(nil), req.Plaintext...)
	result.EncryptedValue = append([]byte("remote:"), req.Plaintext...)
	return result, nil
}

func (f *fakeRemote) Decrypt(_ context.Context, record *model.EncryptedRecord, _ *model.ProviderConfig) ([]byte, error) {
	f.decrypts++
	if record.EncryptedValue == nil {
		return nil, nil
	}
	plaintext, ok := f.store[record.EncryptionKey]
	if !ok {
		return nil, fmt.Errorf("unknown key reference %s", record.EncryptionKey)
	}
	return append([]byte(nil), plaintext...), nil
}

func (f *fakeRemote) Validate(context.Context, *model.ProviderConfig) error {
	f.validates++
	return f.validateErr
}

// fakeSource is a registered entity repository for binding tests.
type fakeSource struct {
	entityType string
	refs       map[string]model.SecretRef
	byRecord   map[string][]model.SecretRef
}

func newFakeSource(entityType string) *fakeSource {
	return &fakeSource{
		entityType: entityType,
		refs:       make(map[string]model.SecretRef),
		byRecord:   make(map[string][]model.SecretRef),
	}
}

func (f *fakeSource) EntityType() string { return f.entityType }

func (f *fakeSource) Lookup(_ string, entityIds []string) ([]model.SecretRef, error) {
	var out []model.SecretRef
	for _, id := range entityIds {
		if ref, ok := f.refs[id]; ok {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (f *fakeSource) ScanRefs(string) (map[string][]model.SecretRef, error) {
	return f.byRecord, nil
}

// bind registers the ref in the source and binds it through the service, the
// way an owning CRUD service would.
func (f *fakeSource) bind(t *testing.T, bindings *BindingService, accountId, recordId string, ref model.SecretRef) {
	t.Helper()
	f.refs[ref.EntityId] = ref
	f.byRecord[recordId] = append(f.byRecord[recordId], ref)
	require.NoError(t, bindings.Bind(accountId, recordId, ref))
}

// testConnector is an Encryptable entity with one secret-bearing field.
type testConnector struct {
	recordId string
	password []byte
}

func (c *testConnector) SecretFields() []model.SecretField {
	return []model.SecretField{{
		Name:     "password",
		RecordId: c.recordId,
		Set:      func(plaintext []byte) { c.password = plaintext },
	}}
}

type testEnv struct {
	records     *fakeRecordRepo
	configs     *fakeConfigRepo
	changeLogs  *fakeChangeLogRepo
	usageLogs   *fakeUsageLogRepo
	transitions *fakeTransitionRepo
	enqueuer    *fakeEnqueuer
	remote      *fakeRemote
	local       *delegate.LocalDelegate
	services    *Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	local, err := delegate.NewLocalDelegate(bytes.Repeat([]byte{0x2a}, 32))
	require.NoError(t, err)

	env := &testEnv{
		records:     newFakeRecordRepo(),
		configs:     newFakeConfigRepo(),
		changeLogs:  &fakeChangeLogRepo{},
		usageLogs:   &fakeUsageLogRepo{},
		transitions: newFakeTransitionRepo(),
		enqueuer:    &fakeEnqueuer{},
		remote:      newFakeRemote(),
		local:       local,
	}

	repos := &repo.Repositories{
		EncryptedRecord: env.records,
		ProviderConfig:  env.configs,
		ChangeLog:       env.changeLogs,
		UsageLog:        env.usageLogs,
		Transition:      env.transitions,
	}
	env.services = NewServices(repos, local, delegate.NewDispatcher(local, env.remote), env.enqueuer)
	return env
}

// saveKmsConfig creates a validated default KMS config and returns its id.
func (env *testEnv) saveKmsConfig(t *testing.T, accountId, name string) string {
	t.Helper()
	configId, err := env.services.ProviderConfig.Save(context.Background(), &model.ProviderConfig{
		AccountId: accountId,
		Name:      name,
		Type:      model.EncryptionTypeKMS,
		IsDefault: true,
		Endpoint:  "https://kms.test.local",
		KeyRef:    "arn:test:key/1",
		AccessKey: "AKIATEST",
	}, "kms-secret-key", "tester")
	require.NoError(t, err)
	return configId
}
