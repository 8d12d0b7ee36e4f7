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

package delegate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-resty/resty/v2"
)

// Conf configures the remote delegate transport.
type Conf struct {
	BaseUrl string
	Token   string
	Timeout int // seconds, bound on every provider round trip
}

// RemoteDelegate dispatches KMS and Vault operations to the out-of-process
// delegate that holds the real provider credentials. The wire payload carries
// the provider settings alongside the operation; the delegate never calls
// back into this process.
type RemoteDelegate struct {
	client *resty.Client
}

// providerSettings is the config subset the delegate needs to reach the
// backend. Credential is expected unsealed by the caller.
type providerSettings struct {
	Type      model.EncryptionType `json:"type"`
	Endpoint  string               `json:"endpoint"`
	KeyRef    string               `json:"keyRef"`
	AccessKey string               `json:"accessKey"`
	Secret    string               `json:"secret"`
}

type encryptPayload struct {
	Name        string           `json:"name"`
	Plaintext   []byte           `json:"plaintext,omitempty"`
	HasValue    bool             `json:"hasValue"`
	PreviousKey string           `json:"previousKey,omitempty"`
	Config      providerSettings `json:"config"`
}

type encryptReply struct {
	EncryptionKey  string `json:"encryptionKey"`
	EncryptedValue []byte `json:"encryptedValue,omitempty"`
}

type decryptPayload struct {
	EncryptionKey  string           `json:"encryptionKey"`
	EncryptedValue []byte           `json:"encryptedValue,omitempty"`
	Config         providerSettings `json:"config"`
}

type decryptReply struct {
	Plaintext []byte `json:"plaintext,omitempty"`
	HasValue  bool   `json:"hasValue"`
}

func NewRemoteDelegate(cfg Conf) *RemoteDelegate {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseUrl).
		SetTimeout(timeout)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &RemoteDelegate{client: client}
}

func (rd *RemoteDelegate) Encrypt(ctx context.Context, req *EncryptRequest) (*EncryptResult, error) {
	payload := &encryptPayload{
		Name:      req.Name,
		Plaintext: req.Plaintext,
		HasValue:  req.Plaintext != nil,
		Config:    settingsOf(req.Config),
	}
	if req.Previous != nil {
		payload.PreviousKey = req.Previous.EncryptionKey
	}

	var reply encryptReply
	if err := rd.post(ctx, "/api/v1/delegate/encrypt", payload, &reply); err != nil {
		return nil, err
	}
	return &EncryptResult{
		EncryptionKey:  reply.EncryptionKey,
		EncryptedValue: reply.EncryptedValue,
	}, nil
}

func (rd *RemoteDelegate) Decrypt(ctx context.Context, record *model.EncryptedRecord, config *model.ProviderConfig) ([]byte, error) {
	if record.EncryptedValue == nil {
		return nil, nil
	}

	payload := &decryptPayload{
		EncryptionKey:  record.EncryptionKey,
		EncryptedValue: record.EncryptedValue,
		Config:         settingsOf(config),
	}

	var reply decryptReply
	if err := rd.post(ctx, "/api/v1/delegate/decrypt", payload, &reply); err != nil {
		return nil, err
	}
	if !reply.HasValue {
		return nil, nil
	}
	return reply.Plaintext, nil
}

func (rd *RemoteDelegate) Validate(ctx context.Context, config *model.ProviderConfig) error {
	payload := map[string]any{"config": settingsOf(config)}
	return rd.post(ctx, "/api/v1/delegate/validate", payload, nil)
}

func (rd *RemoteDelegate) post(ctx context.Context, path string, body, result any) error {
	req := rd.client.R().SetContext(ctx).SetBody(body)
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Post(path)
	if err != nil {
		// Transport failure: the delegate itself is unreachable.
		return fmt.Errorf("%w: %v", core.ErrProviderUnreachable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return fmt.Errorf("%w: provider rejected credentials (%s)", core.ErrInvalidProviderConfig, resp.Status())
	case resp.StatusCode() >= http.StatusInternalServerError:
		return fmt.Errorf("%w: delegate returned %s", core.ErrProviderUnreachable, resp.Status())
	case resp.IsError():
		return fmt.Errorf("delegate call %s failed: %s", path, resp.Status())
	}
	return nil
}

func settingsOf(config *model.ProviderConfig) providerSettings {
	return providerSettings{
		Type:      config.Type,
		Endpoint:  config.Endpoint,
		KeyRef:    config.KeyRef,
		AccessKey: config.AccessKey,
		Secret:    config.SecretRef,
	}
}
