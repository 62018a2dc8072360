package realtime

import (
	"context"
	"time"
)

// StoredMessage is the canonical persisted chat message.
type StoredMessage struct {
	ChannelID   string
	GroupID     string
	ClientMsgID string
	ServerMsgID string
	Seq         int64
	AuthorID    string
	Text        string
	PostedAt    time.Time
}

// MessageStore is the messaging collaborator's persistence boundary.
//
// Requirements:
//   - Idempotency per (channel_id, client_msg_id)
//   - Monotonic seq per channel, no gaps for duplicates
//   - History ordered by seq ASC
type MessageStore interface {
	AppendMessage(ctx context.Context, in AppendMessageInput) (AppendMessageResult, error)
	FetchHistory(ctx context.Context, in FetchHistoryInput) (FetchHistoryResult, error)
	Close() error
}

// AppendMessageInput describes a message append request.
type AppendMessageInput struct {
	ChannelID   string
	GroupID     string
	ClientMsgID string
	AuthorID    string
	Text        string
	Now         time.Time
}

// AppendMessageResult is the append operation result.
type AppendMessageResult struct {
	Stored     StoredMessage
	Duplicated bool
}

// FetchHistoryInput describes a history query request.
type FetchHistoryInput struct {
	ChannelID string
	AfterSeq  *int64
	Limit     int
}

// FetchHistoryResult contains the retrieved history window.
type FetchHistoryResult struct {
	Messages []StoredMessage
	HasMore  bool
}

const (
	historyDefaultLimit = 50
	historyMaxLimit     = 200
)

func clampHistoryLimit(n int) int {
	if n <= 0 {
		return historyDefaultLimit
	}
	if n > historyMaxLimit {
		return historyMaxLimit
	}
	return n
}
