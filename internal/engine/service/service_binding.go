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
	"errors"
	"sort"
	"sync"

	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-citadel/citadel/internal/engine/repo"
	"github.com/go-citadel/citadel/pkg/log"
	"gorm.io/gorm"
)

// RefSource is implemented by each entity repository that can hold secret
// references. The binding service never knows concrete entity types; owning
// services register a source and call Bind/Rebind/Unbind around their own
// create/update/delete.
type RefSource interface {
	EntityType() string
	// Lookup resolves the entity ids this source owns into references;
	// unknown ids are skipped.
	Lookup(accountId string, entityIds []string) ([]model.SecretRef, error)
	// ScanRefs returns every live reference of the account grouped by the
	// secret record id it points at. Used by the index rebuild.
	ScanRefs(accountId string) (map[string][]model.SecretRef, error)
}

// BindingService maintains parentIds, the denormalized id lists, and the
// keyword/tag search index of encrypted records as entities come and go.
type BindingService struct {
	recordRepo repo.IEncryptedRecordRepository

	mu      sync.RWMutex
	sources map[string]RefSource
}

func NewBindingService(recordRepo repo.IEncryptedRecordRepository) *BindingService {
	return &BindingService{
		recordRepo: recordRepo,
		sources:    make(map[string]RefSource),
	}
}

// RegisterSource makes an entity type visible to usage resolution and rebuild.
func (bs *BindingService) RegisterSource(src RefSource) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.sources[src.EntityType()] = src
}

// Bind records that ref's entity now references the secret. Binding the same
// entity twice is a no-op; parentIds stays duplicate free.
func (bs *BindingService) Bind(accountId, recordId string, ref model.SecretRef) error {
	record, err := bs.load(accountId, recordId)
	if err != nil {
		return err
	}

	if !record.ParentIds.Add(ref.EntityId) {
		log.Warnf("entity %s already bound to secret %s, skipping", ref.EntityId, recordId)
		return nil
	}

	applyRef(record, ref)
	syncKeywords(record)

	// Index columns only; a full-row save here could race a transition's
	// ciphertext swap and write the old pair back.
	if err := bs.recordRepo.SaveIndex(record); err != nil {
		return err
	}
	log.Infof("bound entity %s (%s) to secret %s", ref.EntityId, ref.EntityType, recordId)
	return nil
}

// Unbind removes ref's entity from the secret. Unbinding an entity that was
// never bound is a no-op.
func (bs *BindingService) Unbind(accountId, recordId string, ref model.SecretRef) error {
	record, err := bs.load(accountId, recordId)
	if err != nil {
		return err
	}

	if !record.ParentIds.Remove(ref.EntityId) {
		log.Warnf("entity %s not bound to secret %s, skipping", ref.EntityId, recordId)
		return nil
	}

	removeRef(record, ref)
	syncKeywords(record)

	if err := bs.recordRepo.SaveIndex(record); err != nil {
		return err
	}
	log.Infof("unbound entity %s (%s) from secret %s", ref.EntityId, ref.EntityType, recordId)
	return nil
}

// Rebind moves the entity's reference from one secret to another, e.g. when a
// service variable is repointed.
func (bs *BindingService) Rebind(accountId, fromRecordId, toRecordId string, ref model.SecretRef) error {
	if fromRecordId == toRecordId {
		return nil
	}
	if err := bs.Unbind(accountId, fromRecordId, ref); err != nil {
		return err
	}
	return bs.Bind(accountId, toRecordId, ref)
}

// Usage resolves the secret's parentIds against every registered entity type.
func (bs *BindingService) Usage(accountId, recordId string) ([]model.SecretRef, error) {
	record, err := bs.load(accountId, recordId)
	if err != nil {
		return nil, err
	}

	entityIds := record.ParentIds.Members()
	sort.Strings(entityIds)

	bs.mu.RLock()
	defer bs.mu.RUnlock()

	refs := make([]model.SecretRef, 0, len(entityIds))
	for _, src := range bs.sources {
		found, err := src.Lookup(accountId, entityIds)
		if err != nil {
			return nil, err
		}
		refs = append(refs, found...)
	}
	return refs, nil
}

func (bs *BindingService) load(accountId, recordId string) (*model.EncryptedRecord, error) {
	record, err := bs.recordRepo.Get(accountId, recordId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrSecretNotFound
		}
		return nil, err
	}
	return record, nil
}

// applyRef appends one reference event to the denormalized lists and bumps
// the tag counters.
func applyRef(record *model.EncryptedRecord, ref model.SecretRef) {
	if ref.AppId != "" {
		record.AppIds = append(record.AppIds, ref.AppId)
	}
	if ref.ServiceId != "" {
		record.ServiceIds = append(record.ServiceIds, ref.ServiceId)
	}
	if ref.EnvId != "" {
		record.EnvIds = append(record.EnvIds, ref.EnvId)
	}
	record.ReferencedIds = append(record.ReferencedIds, ref.EntityId)

	for _, name := range ref.Names() {
		record.SearchTags.Inc(name)
	}
}

// removeRef reverses applyRef for one reference event.
func removeRef(record *model.EncryptedRecord, ref model.SecretRef) {
	if ref.AppId != "" {
		record.AppIds = record.AppIds.RemoveFirst(ref.AppId)
	}
	if ref.ServiceId != "" {
		record.ServiceIds = record.ServiceIds.RemoveFirst(ref.ServiceId)
	}
	if ref.EnvId != "" {
		record.EnvIds = record.EnvIds.RemoveFirst(ref.EnvId)
	}
	record.ReferencedIds = record.ReferencedIds.RemoveFirst(ref.EntityId)

	for _, name := range ref.Names() {
		record.SearchTags.Dec(name)
	}
}

// syncKeywords derives the keyword list: the secret's own name first, then
// the live tag names in stable order. With no tags left it collapses back to
// just the name.
func syncKeywords(record *model.EncryptedRecord) {
	if record.SearchTags == nil {
		record.SearchTags = map[string]int{}
	}

	tags := record.SearchTags.Keys()
	sort.Strings(tags)

	keywords := make([]string, 0, len(tags)+1)
	keywords = append(keywords, record.Name)
	for _, tag := range tags {
		if tag != record.Name {
			keywords = append(keywords, tag)
		}
	}
	record.Keywords = keywords
}
