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

type ITransitionRepository interface {
	// Create inserts a pending transition; the unique index on
	// (account_id, from_provider_config_id) makes a duplicate request fail
	// with gorm.ErrDuplicatedKey.
	Create(transition *model.SecretTransition) error
	Get(transitionId string) (*model.SecretTransition, error)
	UpdateStatus(transitionId, status string) error
	Delete(transitionId string) error
	ExistsForProvider(accountId, providerConfigId string) (bool, error)
}

type TransitionRepo struct {
	database.IDatabase
}

func NewTransitionRepo(db database.IDatabase) ITransitionRepository {
	return &TransitionRepo{IDatabase: db}
}

func (tr *TransitionRepo) Create(transition *model.SecretTransition) error {
	return tr.Database().Table(transition.TableName()).Create(transition).Error
}

func (tr *TransitionRepo) Get(transitionId string) (*model.SecretTransition, error) {
	var transition model.SecretTransition
	err := tr.Database().Table(transition.TableName()).
		Where("transition_id = ?", transitionId).
		First(&transition).Error
	return &transition, err
}

func (tr *TransitionRepo) UpdateStatus(transitionId, status string) error {
	return tr.Database().Table(model.SecretTransition{}.TableName()).
		Where("transition_id = ?", transitionId).
		Update("status", status).Error
}

func (tr *TransitionRepo) Delete(transitionId string) error {
	return tr.Database().Table(model.SecretTransition{}.TableName()).
		Where("transition_id = ?", transitionId).
		Delete(&model.SecretTransition{}).Error
}

// ExistsForProvider reports whether any unresolved transition reads from or
// writes to the given provider config. Used by the config delete check.
func (tr *TransitionRepo) ExistsForProvider(accountId, providerConfigId string) (bool, error) {
	var total int64
	err := tr.Database().Table(model.SecretTransition{}.TableName()).
		Where("account_id = ? AND (from_provider_config_id = ? OR to_provider_config_id = ?)",
			accountId, providerConfigId, providerConfigId).
		Count(&total).Error
	return total > 0, err
}
