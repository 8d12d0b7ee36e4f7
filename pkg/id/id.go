// Package id generates the engine's identifiers: UUIDs for long-lived rows,
// ULIDs for append-only log rows that must sort by creation time.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GetUUID returns a random v4 UUID in canonical dashed form.
func GetUUID() string {
	return uuid.NewString()
}

// GetULID returns a lexicographically sortable id, monotonic within this
// process so log rows written in the same millisecond keep their order.
func GetULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return GetUUID()
	}
	return id.String()
}
