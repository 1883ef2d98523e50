package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns prefix_ followed by eight hex characters.
func NewID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}

// NewULID returns a lowercase ULID that sorts by creation time, including
// ids minted within the same millisecond.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// NewMessageID returns a time-ordered message id.
func NewMessageID() string {
	return "msg_" + NewULID()
}
