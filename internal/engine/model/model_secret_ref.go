package model

// SecretRef describes one referencing entity at bind/unbind time. The owning
// CRUD service supplies the denormalized identifiers; empty fields are
// skipped when indexing.
type SecretRef struct {
	EntityId     string `json:"entityId"`
	EntityType   string `json:"entityType"`
	AppId        string `json:"appId"`
	AppName      string `json:"appName"`
	ServiceId    string `json:"serviceId"`
	ServiceName  string `json:"serviceName"`
	EnvId        string `json:"envId"`
	EnvName      string `json:"envName"`
	VariableName string `json:"variableName"`
}

// Names returns the human-readable tags this reference contributes to the
// search index, in a stable order.
func (r SecretRef) Names() []string {
	names := make([]string, 0, 4)
	for _, n := range []string{r.AppName, r.ServiceName, r.EnvName, r.VariableName} {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// UsageScope restricts a secret to one app/environment pair. Scopes seed the
// search index at save time.
type UsageScope struct {
	AppId   string `json:"appId"`
	AppName string `json:"appName"`
	EnvId   string `json:"envId"`
	EnvName string `json:"envName"`
}

// DecryptDirective tells the runtime decryptor which record backs which field
// of an entity. It never carries plaintext.
type DecryptDirective struct {
	FieldName        string         `json:"fieldName"`
	RecordId         string         `json:"recordId"`
	EncryptionType   EncryptionType `json:"encryptionType"`
	ProviderConfigId string         `json:"providerConfigId"`
}

// SecretField is one secret-bearing field of an entity. Set receives the
// decrypted value; implementations must keep it out of persisted state.
type SecretField struct {
	Name     string
	RecordId string
	Set      func(plaintext []byte)
}

// Encryptable is implemented by any entity whose fields hold secret ids.
type Encryptable interface {
	SecretFields() []SecretField
}
