package model

// Transition statuses.
const (
	TransitionStatusPending    = "pending"
	TransitionStatusProcessing = "processing"
)

// SecretTransition is one pending provider migration. The unique index on
// (account_id, from_provider_config_id) is what keeps a second request for
// the same pair from entering the system while the first is unresolved; the
// row is deleted once every record has been rewritten.
type SecretTransition struct {
	BaseModel
	TransitionId string         `gorm:"column:transition_id;uniqueIndex" json:"transitionId"`
	AccountId    string         `gorm:"column:account_id;uniqueIndex:uk_account_from" json:"accountId"`
	FromType     EncryptionType `gorm:"column:from_type" json:"fromEncryptionType"`
	FromConfigId string         `gorm:"column:from_provider_config_id;uniqueIndex:uk_account_from" json:"fromProviderConfigId"`
	ToType       EncryptionType `gorm:"column:to_type" json:"toEncryptionType"`
	ToConfigId   string         `gorm:"column:to_provider_config_id" json:"toProviderConfigId"`
	Status       string         `gorm:"column:status" json:"status"`
}

func (SecretTransition) TableName() string {
	return "t_secret_transition"
}
