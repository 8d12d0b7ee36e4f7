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

package core

import "errors"

var (
	// ErrProviderUnreachable remote delegate or provider backend could not be reached, retryable
	ErrProviderUnreachable = errors.New("encryption provider unreachable")
	// ErrInvalidProviderConfig provider rejected the configured credentials, not retryable
	ErrInvalidProviderConfig = errors.New("invalid provider config")
	// ErrSecretReferenced delete rejected while other entities still reference the target
	ErrSecretReferenced = errors.New("secret is still referenced")
	// ErrSecretNotFound no encrypted record with the given id in the account
	ErrSecretNotFound = errors.New("secret not found")
	// ErrTransitionInProgress a transition for the same account and source provider is already pending
	ErrTransitionInProgress = errors.New("provider transition already in progress")
	// ErrDuplicateDefaultProvider more than one default config of one type, internal consistency bug
	ErrDuplicateDefaultProvider = errors.New("duplicate default provider config")
)
