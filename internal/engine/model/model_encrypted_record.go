package model

import (
	"github.com/go-citadel/citadel/pkg/datatype"
)

// EncryptionType identifies the provider family that produced a ciphertext.
type EncryptionType string

const (
	EncryptionTypeLocal EncryptionType = "LOCAL"
	EncryptionTypeKMS   EncryptionType = "KMS"
	EncryptionTypeVault EncryptionType = "VAULT"
)

// Secret type tags. Connector-backed secrets carry the field they protect.
const (
	SecretTypeText              = "SECRET_TEXT"
	SecretTypeFile              = "CONFIG_FILE"
	SecretTypeConnectorPassword = "CONNECTOR_PASSWORD"
	SecretTypeConnectorToken    = "CONNECTOR_TOKEN"
)

// MaskedValue is the sentinel callers send on update to mean "keep the
// existing ciphertext, only metadata may change".
const MaskedValue = "*******"

// EncryptedRecord is the stored, provider-agnostic form of one secret.
// ParentIds is a set of referencing entity ids; the denormalized id lists are
// ordered and keep duplicates, one entry per reference event. SearchTags and
// Keywords are derived state maintained by the binding service and repairable
// via a full index rebuild.
type EncryptedRecord struct {
	BaseModel
	RecordId         string              `gorm:"column:record_id;uniqueIndex" json:"recordId"`
	AccountId        string              `gorm:"column:account_id;index" json:"accountId"`
	Name             string              `gorm:"column:name" json:"name"`
	SecretType       string              `gorm:"column:secret_type;index" json:"secretType"`
	EncryptionType   EncryptionType      `gorm:"column:encryption_type" json:"encryptionType"`
	ProviderConfigId string              `gorm:"column:provider_config_id;index" json:"providerConfigId"`
	EncryptionKey    string              `gorm:"column:encryption_key" json:"encryptionKey,omitempty"`
	EncryptedValue   []byte              `gorm:"column:encrypted_value" json:"encryptedValue,omitempty"`
	Enabled          bool                `gorm:"column:enabled" json:"enabled"`
	ParentIds        datatype.StringSet  `gorm:"column:parent_ids;type:json" json:"parentIds"`
	AppIds           datatype.StringList `gorm:"column:app_ids;type:json" json:"appIds"`
	ServiceIds       datatype.StringList `gorm:"column:service_ids;type:json" json:"serviceIds"`
	EnvIds           datatype.StringList `gorm:"column:env_ids;type:json" json:"envIds"`
	ReferencedIds    datatype.StringList `gorm:"column:referenced_ids;type:json" json:"referencingEntityIds"`
	SearchTags       datatype.CountMap   `gorm:"column:search_tags;type:json" json:"searchTags"`
	Keywords         datatype.StringList `gorm:"column:keywords;type:json" json:"keywords"`
	UsageScopes      datatype.JSON       `gorm:"column:usage_scopes;type:json" json:"usageScopes,omitempty"`
	CreatedBy        string              `gorm:"column:created_by" json:"createdBy"`

	// Filled by the list operation when usage stats are requested.
	SetupUsage   int    `gorm:"-" json:"setupUsage,omitempty"`
	RunTimeUsage int64  `gorm:"-" json:"runTimeUsage,omitempty"`
	ChangeLog    int64  `gorm:"-" json:"changeLog,omitempty"`
	EncryptedBy  string `gorm:"-" json:"encryptedBy,omitempty"`
}

func (EncryptedRecord) TableName() string {
	return "t_encrypted_record"
}

// Mask blanks the key material before the record leaves the service layer.
func (r *EncryptedRecord) Mask() {
	r.EncryptionKey = ""
	r.EncryptedValue = nil
}
