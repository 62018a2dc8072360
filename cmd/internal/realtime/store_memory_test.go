package realtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, s MessageStore, channelID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.AppendMessage(context.Background(), AppendMessageInput{
			ChannelID:   channelID,
			GroupID:     "g1",
			ClientMsgID: fmt.Sprintf("c%d", i),
			AuthorID:    "u1",
			Text:        fmt.Sprintf("m%d", i),
			Now:         time.Now().UTC(),
		})
		require.NoError(t, err)
	}
}

func TestInMemoryStore_AppendIsIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	in := AppendMessageInput{ChannelID: "ch", GroupID: "g", ClientMsgID: "c1", AuthorID: "u", Text: "hi"}

	first, err := s.AppendMessage(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Duplicated)
	assert.Equal(t, int64(1), first.Stored.Seq)

	in.Text = "changed"
	again, err := s.AppendMessage(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Duplicated)
	assert.Equal(t, first.Stored, again.Stored)

	in.ClientMsgID = "c2"
	next, err := s.AppendMessage(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Stored.Seq)
}

func TestInMemoryStore_SeqIsPerChannel(t *testing.T) {
	s := NewInMemoryStore()
	appendN(t, s, "a", 3)
	appendN(t, s, "b", 1)

	out, err := s.FetchHistory(context.Background(), FetchHistoryInput{ChannelID: "b"})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, int64(1), out.Messages[0].Seq)
}

func TestInMemoryStore_HistoryPaging(t *testing.T) {
	s := NewInMemoryStore()
	appendN(t, s, "ch", 5)

	page, err := s.FetchHistory(context.Background(), FetchHistoryInput{ChannelID: "ch", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(1), page.Messages[0].Seq)

	after := int64(3)
	page, err = s.FetchHistory(context.Background(), FetchHistoryInput{ChannelID: "ch", AfterSeq: &after})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.False(t, page.HasMore)
	assert.Equal(t, int64(4), page.Messages[0].Seq)

	after = 5
	page, err = s.FetchHistory(context.Background(), FetchHistoryInput{ChannelID: "ch", AfterSeq: &after})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestInMemoryStore_RejectsIncompleteInput(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.AppendMessage(context.Background(), AppendMessageInput{ChannelID: "ch", ClientMsgID: "c"})
	assert.Error(t, err)
	_, err = s.FetchHistory(context.Background(), FetchHistoryInput{})
	assert.Error(t, err)
}

func TestClampHistoryLimit(t *testing.T) {
	assert.Equal(t, historyDefaultLimit, clampHistoryLimit(0))
	assert.Equal(t, 10, clampHistoryLimit(10))
	assert.Equal(t, historyMaxLimit, clampHistoryLimit(10_000))
}
