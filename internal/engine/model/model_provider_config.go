package model

// ProviderConfig is a named KMS or Vault configuration scoped to one account.
// Sensitive connection parameters are stored encrypted through the LOCAL path;
// the raw credential never reaches the table. LOCAL is implicit and never has
// a row here.
type ProviderConfig struct {
	BaseModel
	ConfigId  string         `gorm:"column:config_id;uniqueIndex" json:"configId"`
	AccountId string         `gorm:"column:account_id;index" json:"accountId"`
	Name      string         `gorm:"column:name" json:"name"`
	Type      EncryptionType `gorm:"column:type" json:"type"`
	IsDefault bool           `gorm:"column:is_default" json:"isDefault"`

	// Endpoint of the provider backend (KMS region endpoint or Vault URL).
	Endpoint string `gorm:"column:endpoint" json:"endpoint"`
	// KeyRef names the key the provider encrypts with (KMS key ARN or Vault
	// secret-engine mount path).
	KeyRef string `gorm:"column:key_ref" json:"keyRef"`
	// AccessKey is the non-secret half of the credential pair.
	AccessKey string `gorm:"column:access_key" json:"accessKey"`
	// SecretRef holds the LOCAL-encrypted credential (KMS secret key or Vault
	// token), base64 of wrapped-key + ciphertext.
	SecretRef string `gorm:"column:secret_ref" json:"-"`

	CreatedBy string `gorm:"column:created_by" json:"createdBy"`
}

func (ProviderConfig) TableName() string {
	return "t_provider_config"
}

// LocalProviderConfig is the implicit fallback returned when an account has
// no default KMS or Vault config.
func LocalProviderConfig(accountId string) *ProviderConfig {
	return &ProviderConfig{
		AccountId: accountId,
		Name:      "Local Encryption",
		Type:      EncryptionTypeLocal,
		IsDefault: true,
	}
}
