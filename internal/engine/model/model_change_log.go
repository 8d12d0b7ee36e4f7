package model

// Change-log descriptions form a closed set; the UI keys off these strings.
const (
	ChangeCreated           = "Created"
	ChangeNameAndValue      = "Changed name & value"
	ChangeUsageRestrictions = "Changed usage restrictions"
	ChangePassword          = "Changed password"
	ChangeFileUploaded      = "File uploaded"
	ChangeNameAndFile       = "Changed Name and File"
)

// SecretChangeLog is one append-only audit row per mutating secret operation.
// Rows are never updated; they are removed only when the owning record is
// deleted.
type SecretChangeLog struct {
	BaseModel
	LogId       string `gorm:"column:log_id;uniqueIndex" json:"logId"`
	RecordId    string `gorm:"column:record_id;index" json:"encryptedDataId"`
	AccountId   string `gorm:"column:account_id;index" json:"accountId"`
	Description string `gorm:"column:description" json:"description"`
	ChangedBy   string `gorm:"column:changed_by" json:"changedBy"`
}

func (SecretChangeLog) TableName() string {
	return "t_secret_change_log"
}
