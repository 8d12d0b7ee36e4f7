package repo

import (
	"github.com/go-citadel/citadel/pkg/database"
	"github.com/google/wire"
)

// ProviderSet provides the repository layer.
var ProviderSet = wire.NewSet(ProvideRepositories)

// Repositories bundles every store of the secret engine.
type Repositories struct {
	EncryptedRecord IEncryptedRecordRepository
	ProviderConfig  IProviderConfigRepository
	ChangeLog       IChangeLogRepository
	UsageLog        IUsageLogRepository
	Transition      ITransitionRepository
}

func ProvideRepositories(db database.IDatabase) *Repositories {
	return NewRepositories(db)
}

func NewRepositories(db database.IDatabase) *Repositories {
	return &Repositories{
		EncryptedRecord: NewEncryptedRecordRepo(db),
		ProviderConfig:  NewProviderConfigRepo(db),
		ChangeLog:       NewChangeLogRepo(db),
		UsageLog:        NewUsageLogRepo(db),
		Transition:      NewTransitionRepo(db),
	}
}
