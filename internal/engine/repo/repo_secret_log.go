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

// Change and usage logs are append-only; both repos expose create, read,
// count, and the cascading delete used when the owning record goes away.

type IChangeLogRepository interface {
	Create(entry *model.SecretChangeLog) error
	ListByRecord(accountId, recordId string) ([]*model.SecretChangeLog, error)
	CountByRecord(recordId string) (int64, error)
	DeleteByRecord(recordId string) error
}

type ChangeLogRepo struct {
	database.IDatabase
}

func NewChangeLogRepo(db database.IDatabase) IChangeLogRepository {
	return &ChangeLogRepo{IDatabase: db}
}

func (cr *ChangeLogRepo) Create(entry *model.SecretChangeLog) error {
	return cr.Database().Table(entry.TableName()).Create(entry).Error
}

// ListByRecord returns entries newest first
func (cr *ChangeLogRepo) ListByRecord(accountId, recordId string) ([]*model.SecretChangeLog, error) {
	var entries []*model.SecretChangeLog
	err := cr.Database().Table(model.SecretChangeLog{}.TableName()).
		Where("account_id = ? AND record_id = ?", accountId, recordId).
		Order("id DESC").
		Find(&entries).Error
	return entries, err
}

func (cr *ChangeLogRepo) CountByRecord(recordId string) (int64, error) {
	var total int64
	err := cr.Database().Table(model.SecretChangeLog{}.TableName()).
		Where("record_id = ?", recordId).
		Count(&total).Error
	return total, err
}

func (cr *ChangeLogRepo) DeleteByRecord(recordId string) error {
	return cr.Database().Table(model.SecretChangeLog{}.TableName()).
		Where("record_id = ?", recordId).
		Delete(&model.SecretChangeLog{}).Error
}

type IUsageLogRepository interface {
	Create(entry *model.SecretUsageLog) error
	ListByRecord(accountId, recordId string) ([]*model.SecretUsageLog, error)
	CountByRecord(recordId string) (int64, error)
	DeleteByRecord(recordId string) error
}

type UsageLogRepo struct {
	database.IDatabase
}

func NewUsageLogRepo(db database.IDatabase) IUsageLogRepository {
	return &UsageLogRepo{IDatabase: db}
}

func (ur *UsageLogRepo) Create(entry *model.SecretUsageLog) error {
	return ur.Database().Table(entry.TableName()).Create(entry).Error
}

// ListByRecord returns entries newest first
func (ur *UsageLogRepo) ListByRecord(accountId, recordId string) ([]*model.SecretUsageLog, error) {
	var entries []*model.SecretUsageLog
	err := ur.Database().Table(model.SecretUsageLog{}.TableName()).
		Where("account_id = ? AND record_id = ?", accountId, recordId).
		Order("id DESC").
		Find(&entries).Error
	return entries, err
}

func (ur *UsageLogRepo) CountByRecord(recordId string) (int64, error) {
	var total int64
	err := ur.Database().Table(model.SecretUsageLog{}.TableName()).
		Where("record_id = ?", recordId).
		Count(&total).Error
	return total, err
}

func (ur *UsageLogRepo) DeleteByRecord(recordId string) error {
	return ur.Database().Table(model.SecretUsageLog{}.TableName()).
		Where("record_id = ?", recordId).
		Delete(&model.SecretUsageLog{}).Error
}
