package realtime

import (
	"time"

	"huddle/cmd/identity/ids"
)

// Connection, envelope and message ids are all ULIDs, so each kind sorts by
// creation time in logs and in chat history.

func NewSessionID(now time.Time) (string, error)  { return ids.NewULID(now) }
func NewEnvelopeID(now time.Time) (string, error) { return ids.NewULID(now) }
func NewMessageID(now time.Time) (string, error)  { return ids.NewULID(now) }
