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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Secret-engine counters, labeled by provider type where it matters.
var (
	EncryptOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citadel",
		Subsystem: "secrets",
		Name:      "encrypt_ops_total",
		Help:      "Encryption calls dispatched to providers.",
	}, []string{"provider"})

	DecryptOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citadel",
		Subsystem: "secrets",
		Name:      "decrypt_ops_total",
		Help:      "Runtime decryption calls dispatched to providers.",
	}, []string{"provider"})

	TransitionRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "citadel",
		Subsystem: "secrets",
		Name:      "transition_records_total",
		Help:      "Records re-encrypted by the transition worker.",
	})

	UsageLogWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "citadel",
		Subsystem: "secrets",
		Name:      "usage_log_writes_total",
		Help:      "Usage-log rows appended on runtime decryption.",
	})
)
