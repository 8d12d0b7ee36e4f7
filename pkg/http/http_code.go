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

package http

var (
	Failed                        = failed(500, "Request failed")
	RequestParameterParsingFailed = failed(5001, "Request parameter parsing failed")
	AccountIdIsEmpty              = failed(5002, "Account id is empty")

	// BadRequest 400
	BadRequest = failed(4000, "Bad request")
	NotFound   = failed(4004, "Not found")

	InternalError = failed(5000, "Internal error, please contact the administrator")

	SecretNotFound           = failed(4601, "Secret does not exist")
	SecretReferenced         = failed(4602, "Secret is still referenced")
	ProviderUnreachable      = failed(4603, "Encryption provider is unreachable")
	InvalidProviderConfig    = failed(4604, "Encryption provider config is invalid")
	TransitionInProgress     = failed(4605, "A provider transition is already in progress")
	DuplicateDefaultProvider = failed(4606, "More than one default provider configured")
)

var (
	Success = success(200, "Request Success")
)

func failed(code int, msg string) *Response {
	return &Response{
		Code:   code,
		Msg:    msg,
		Detail: nil,
	}
}

func success(code int, msg string) *Response {
	return &Response{
		Code:   code,
		Msg:    msg,
		Detail: nil,
	}
}
