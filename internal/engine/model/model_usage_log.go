package model

// SecretUsageLog is one append-only row per runtime decryption, carrying the
// execution context the caller supplied.
type SecretUsageLog struct {
	BaseModel
	LogId               string `gorm:"column:log_id;uniqueIndex" json:"logId"`
	RecordId            string `gorm:"column:record_id;index" json:"encryptedDataId"`
	AccountId           string `gorm:"column:account_id;index" json:"accountId"`
	WorkflowExecutionId string `gorm:"column:workflow_execution_id" json:"workflowExecutionId"`
	EnvId               string `gorm:"column:env_id" json:"envId"`
	AppId               string `gorm:"column:app_id" json:"appId"`
}

func (SecretUsageLog) TableName() string {
	return "t_secret_usage_log"
}
