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
	"fmt"

	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-citadel/citadel/internal/engine/repo"
	"github.com/go-citadel/citadel/pkg/datatype"
	"github.com/go-citadel/citadel/pkg/log"
)

// RebuildService recomputes the derived index state of every record in an
// account from the system of record: the registered entity sources and the
// stored usage scopes. It repairs drift after partial failures; reads never
// depend on it having run.
type RebuildService struct {
	recordRepo repo.IEncryptedRecordRepository
	bindings   *BindingService
}

func NewRebuildService(recordRepo repo.IEncryptedRecordRepository, bindings *BindingService) *RebuildService {
	return &RebuildService{recordRepo: recordRepo, bindings: bindings}
}

// RebuildAll rescans every registered entity source and rewrites parentIds,
// the denormalized lists, searchTags, and keywords of each record. Running it
// twice is the same as running it once; records that fail are reported and
// retried on the next invocation, the rest still get repaired.
func (rs *RebuildService) RebuildAll(accountId string) error {
	records, err := rs.recordRepo.ListAll(accountId)
	if err != nil {
		return err
	}

	refsByRecord, err := rs.scanAll(accountId)
	if err != nil {
		return err
	}

	var failed int
	for _, record := range records {
		rebuildRecord(record, refsByRecord[record.RecordId])
		if err := rs.recordRepo.SaveIndex(record); err != nil {
			failed++
			log.Errorf("rebuild: failed to save record %s: %v", record.RecordId, err)
		}
	}

	log.Infof("rebuild finished for account %s: %d records, %d failed", accountId, len(records), failed)
	if failed > 0 {
		return fmt.Errorf("rebuild left %d of %d records unrepaired", failed, len(records))
	}
	return nil
}

func (rs *RebuildService) scanAll(accountId string) (map[string][]model.SecretRef, error) {
	rs.bindings.mu.RLock()
	defer rs.bindings.mu.RUnlock()

	merged := make(map[string][]model.SecretRef)
	for _, src := range rs.bindings.sources {
		refs, err := src.ScanRefs(accountId)
		if err != nil {
			return nil, fmt.Errorf("scan %s refs: %w", src.EntityType(), err)
		}
		for recordId, entityRefs := range refs {
			merged[recordId] = append(merged[recordId], entityRefs...)
		}
	}
	return merged, nil
}

// rebuildRecord recomputes all derived fields from scratch.
func rebuildRecord(record *model.EncryptedRecord, refs []model.SecretRef) {
	record.ParentIds = datatype.NewStringSet()
	record.AppIds = datatype.StringList{}
	record.ServiceIds = datatype.StringList{}
	record.EnvIds = datatype.StringList{}
	record.ReferencedIds = datatype.StringList{}
	record.SearchTags = datatype.CountMap{}

	for _, ref := range refs {
		if !record.ParentIds.Add(ref.EntityId) {
			continue
		}
		applyRef(record, ref)
	}

	// Usage scopes seed tags independently of live bindings.
	if scopes, err := scopesOf(record); err == nil {
		for _, scope := range scopes {
			seedScope(record, scope, true)
		}
	} else {
		log.Warnf("rebuild: unreadable usage scopes on %s: %v", record.RecordId, err)
	}

	syncKeywords(record)
}
