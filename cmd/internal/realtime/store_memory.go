package realtime

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// memChannelCap bounds each channel's retained history in memory mode.
const memChannelCap = 10_000

var errInvalidAppend = errors.New("realtime: channel, client id and author are required")

// InMemoryStore is the MessageStore used when no database is configured.
type InMemoryStore struct {
	mu       sync.Mutex
	channels map[string]*memChannel
}

// memChannel holds messages in seq order. byClient indexes the retained
// messages only, so a retry older than the window is stored again.
type memChannel struct {
	seq      int64
	msgs     []StoredMessage
	byClient map[string]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{channels: make(map[string]*memChannel)}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) channel(id string) *memChannel {
	c := s.channels[id]
	if c == nil {
		c = &memChannel{byClient: make(map[string]int64)}
		s.channels[id] = c
	}
	return c
}

// at returns the retained message with seq, if any.
func (c *memChannel) at(seq int64) (StoredMessage, bool) {
	i, ok := slices.BinarySearchFunc(c.msgs, seq, func(m StoredMessage, s int64) int {
		return int(m.Seq - s)
	})
	if !ok {
		return StoredMessage{}, false
	}
	return c.msgs[i], true
}

// AppendMessage stores in.Text once per (channel, client id) and assigns the next seq.
func (s *InMemoryStore) AppendMessage(ctx context.Context, in AppendMessageInput) (AppendMessageResult, error) {
	if in.ChannelID == "" || in.ClientMsgID == "" || in.AuthorID == "" {
		return AppendMessageResult{}, errInvalidAppend
	}
	if err := ctx.Err(); err != nil {
		return AppendMessageResult{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.channel(in.ChannelID)
	if seq, ok := c.byClient[in.ClientMsgID]; ok {
		if prev, ok := c.at(seq); ok {
			return AppendMessageResult{Stored: prev, Duplicated: true}, nil
		}
	}

	id, err := NewMessageID(now)
	if err != nil {
		return AppendMessageResult{}, err
	}
	c.seq++
	msg := StoredMessage{
		ChannelID:   in.ChannelID,
		GroupID:     in.GroupID,
		ClientMsgID: in.ClientMsgID,
		ServerMsgID: id,
		Seq:         c.seq,
		AuthorID:    in.AuthorID,
		Text:        in.Text,
		PostedAt:    now,
	}
	c.msgs = append(c.msgs, msg)
	c.byClient[in.ClientMsgID] = msg.Seq

	if over := len(c.msgs) - memChannelCap; over > 0 {
		for _, m := range c.msgs[:over] {
			delete(c.byClient, m.ClientMsgID)
		}
		c.msgs = slices.Clone(c.msgs[over:])
	}
	return AppendMessageResult{Stored: msg}, nil
}

// FetchHistory returns up to Limit messages after AfterSeq (from the start when nil), oldest first.
func (s *InMemoryStore) FetchHistory(ctx context.Context, in FetchHistoryInput) (FetchHistoryResult, error) {
	if in.ChannelID == "" {
		return FetchHistoryResult{}, errors.New("realtime: channel id is required")
	}
	if err := ctx.Err(); err != nil {
		return FetchHistoryResult{}, err
	}
	limit := clampHistoryLimit(in.Limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.channels[in.ChannelID]
	if c == nil {
		return FetchHistoryResult{}, nil
	}

	start := 0
	if in.AfterSeq != nil {
		after := *in.AfterSeq
		start, _ = slices.BinarySearchFunc(c.msgs, after+1, func(m StoredMessage, s int64) int {
			return int(m.Seq - s)
		})
	}
	rest := c.msgs[start:]
	if len(rest) == 0 {
		return FetchHistoryResult{}, nil
	}
	if len(rest) > limit {
		return FetchHistoryResult{Messages: slices.Clone(rest[:limit]), HasMore: true}, nil
	}
	return FetchHistoryResult{Messages: slices.Clone(rest)}, nil
}
