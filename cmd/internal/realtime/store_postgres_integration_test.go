package realtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"huddle/cmd/internal/pgtest"
)

// Integration tests are opt-in and require HUDDLE_DATABASE_URL.

func newIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()

	pool := pgtest.Open(t)
	schema := pgtest.MigratedSchema(t, pool)

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	return st
}

func testChannelID(t *testing.T, prefix string) string {
	t.Helper()
	id, err := NewMessageID(time.Now().UTC())
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	return prefix + "-" + strings.ToLower(id)
}

func TestPostgresStore_Append_Dedupe_NoSeqWaste(t *testing.T) {
	t.Parallel()

	store := newIntegrationStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	channelID := testChannelID(t, "it-dedupe")
	now := time.Now().UTC()

	first, err := store.AppendMessage(ctx, AppendMessageInput{
		ChannelID:   channelID,
		GroupID:     "g1",
		ClientMsgID: "cmsg-1",
		AuthorID:    "u1",
		Text:        "hello",
		Now:         now,
	})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.Duplicated {
		t.Fatalf("append first: expected Duplicated=false")
	}
	if first.Stored.Seq != 1 {
		t.Fatalf("append first: expected seq=1 got=%d", first.Stored.Seq)
	}
	if strings.TrimSpace(first.Stored.ServerMsgID) == "" {
		t.Fatalf("append first: expected non-empty server_msg_id")
	}

	second, err := store.AppendMessage(ctx, AppendMessageInput{
		ChannelID:   channelID,
		GroupID:     "g1",
		ClientMsgID: "cmsg-1",
		AuthorID:    "u1",
		Text:        "hello again",
		Now:         now.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if !second.Duplicated {
		t.Fatalf("append duplicate: expected Duplicated=true")
	}
	if second.Stored.ServerMsgID != first.Stored.ServerMsgID || second.Stored.Text != "hello" {
		t.Fatalf("append duplicate: expected the original row, got %+v", second.Stored)
	}

	third, err := store.AppendMessage(ctx, AppendMessageInput{
		ChannelID:   channelID,
		GroupID:     "g1",
		ClientMsgID: "cmsg-2",
		AuthorID:    "u1",
		Text:        "next",
		Now:         now.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("append third: %v", err)
	}
	if third.Stored.Seq != 2 {
		t.Fatalf("duplicate must not burn a seq: got=%d", third.Stored.Seq)
	}
}

func TestPostgresStore_History_Order_AfterSeq_HasMore(t *testing.T) {
	t.Parallel()

	store := newIntegrationStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	channelID := testChannelID(t, "it-history")

	for i := 0; i < 3; i++ {
		_, err := store.AppendMessage(ctx, AppendMessageInput{
			ChannelID:   channelID,
			GroupID:     "g1",
			ClientMsgID: fmt.Sprintf("cmsg-%d", i),
			AuthorID:    "u1",
			Text:        fmt.Sprintf("m%d", i),
			Now:         time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	out1, err := store.FetchHistory(ctx, FetchHistoryInput{ChannelID: channelID, Limit: 2})
	if err != nil {
		t.Fatalf("fetch history 1: %v", err)
	}
	if len(out1.Messages) != 2 || !out1.HasMore {
		t.Fatalf("fetch history 1: expected 2 msgs with more, got %d more=%v", len(out1.Messages), out1.HasMore)
	}
	if out1.Messages[0].Seq != 1 || out1.Messages[1].Seq != 2 {
		t.Fatalf("fetch history 1: expected seq [1,2], got [%d,%d]", out1.Messages[0].Seq, out1.Messages[1].Seq)
	}
	if out1.Messages[0].AuthorID != "u1" || out1.Messages[0].GroupID != "g1" {
		t.Fatalf("fetch history 1: columns not round-tripped: %+v", out1.Messages[0])
	}

	after := out1.Messages[len(out1.Messages)-1].Seq
	out2, err := store.FetchHistory(ctx, FetchHistoryInput{ChannelID: channelID, AfterSeq: &after, Limit: 50})
	if err != nil {
		t.Fatalf("fetch history 2: %v", err)
	}
	if len(out2.Messages) != 1 || out2.HasMore {
		t.Fatalf("fetch history 2: expected 1 msg without more, got %d more=%v", len(out2.Messages), out2.HasMore)
	}
	if out2.Messages[0].Seq != 3 {
		t.Fatalf("fetch history 2: expected seq=3 got=%d", out2.Messages[0].Seq)
	}
}

func TestPostgresStore_ConcurrentAppend_StrictSeq_NoGaps(t *testing.T) {
	t.Parallel()

	store := newIntegrationStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	channelID := testChannelID(t, "it-concurrency")

	const n = 32

	var wg sync.WaitGroup
	errCh := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendMessage(ctx, AppendMessageInput{
				ChannelID:   channelID,
				GroupID:     "g1",
				ClientMsgID: fmt.Sprintf("cmsg-%d", i),
				AuthorID:    "u1",
				Text:        fmt.Sprintf("m%d", i),
				Now:         time.Now().UTC(),
			})
			if err != nil {
				errCh <- err
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("concurrent append error: %v", err)
	}

	out, err := store.FetchHistory(ctx, FetchHistoryInput{ChannelID: channelID, Limit: 200})
	if err != nil {
		t.Fatalf("fetch history: %v", err)
	}
	if len(out.Messages) != n {
		t.Fatalf("expected %d messages, got %d", n, len(out.Messages))
	}

	seqs := make([]int64, 0, n)
	for _, m := range out.Messages {
		seqs = append(seqs, m.Seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, s := range seqs {
		if s != int64(i+1) {
			t.Fatalf("seq gap at %d: got %d", i, s)
		}
	}
}
