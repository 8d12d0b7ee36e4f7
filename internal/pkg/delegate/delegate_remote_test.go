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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kmsConfig() *model.ProviderConfig {
	return &model.ProviderConfig{
		Type:      model.EncryptionTypeKMS,
		Endpoint:  "https://kms.test.local",
		KeyRef:    "arn:test:key/1",
		AccessKey: "AKIATEST",
		SecretRef: "plain-secret",
	}
}

func TestRemoteDelegateEncryptDecrypt(t *testing.T) {
	// The stub plays the out-of-process delegate: it remembers the plaintext
	// by key reference and hands it back on decrypt.
	store := make(map[string][]byte)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/delegate/encrypt":
			var payload encryptPayload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "AKIATEST", payload.Config.AccessKey)
			assert.Equal(t, "plain-secret", payload.Config.Secret)

			key := "kms/keys/" + payload.Name
			store[key] = payload.Plaintext
			assert.NoError(t, json.NewEncoder(w).Encode(encryptReply{
				EncryptionKey:  key,
				EncryptedValue: append([]byte("enc:"), payload.Plaintext...),
			}))
		case "/api/v1/delegate/decrypt":
			var payload decryptPayload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.NoError(t, json.NewEncoder(w).Encode(decryptReply{
				Plaintext: store[payload.EncryptionKey],
				HasValue:  true,
			}))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	rd := NewRemoteDelegate(Conf{BaseUrl: srv.URL})
	ctx := context.Background()

	result, err := rd.Encrypt(ctx, &EncryptRequest{
		Name:      "db-password",
		Plaintext: []byte("s3cr3t"),
		Config:    kmsConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, "kms/keys/db-password", result.EncryptionKey)

	plaintext, err := rd.Decrypt(ctx, &model.EncryptedRecord{
		EncryptionKey:  result.EncryptionKey,
		EncryptedValue: result.EncryptedValue,
	}, kmsConfig())
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cr3t"), plaintext)
}

func TestRemoteDelegateDecryptNilCiphertextSkipsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for a record without ciphertext")
	}))
	defer srv.Close()

	rd := NewRemoteDelegate(Conf{BaseUrl: srv.URL})
	plaintext, err := rd.Decrypt(context.Background(), &model.EncryptedRecord{EncryptionKey: "k"}, kmsConfig())
	require.NoError(t, err)
	assert.Nil(t, plaintext)
}

func TestRemoteDelegateCredentialRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rd := NewRemoteDelegate(Conf{BaseUrl: srv.URL})
	err := rd.Validate(context.Background(), kmsConfig())
	assert.ErrorIs(t, err, core.ErrInvalidProviderConfig)
}

func TestRemoteDelegateServerErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rd := NewRemoteDelegate(Conf{BaseUrl: srv.URL})
	err := rd.Validate(context.Background(), kmsConfig())
	assert.ErrorIs(t, err, core.ErrProviderUnreachable)
}

func TestRemoteDelegateTransportFailureIsUnreachable(t *testing.T) {
	// Nothing listens here.
	rd := NewRemoteDelegate(Conf{BaseUrl: "http://127.0.0.1:1", Timeout: 1})
	err := rd.Validate(context.Background(), kmsConfig())
	assert.ErrorIs(t, err, core.ErrProviderUnreachable)
}
