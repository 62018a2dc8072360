package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// The pool belongs to the caller; Close does nothing. Appends take a
// per-channel transactional advisory lock, so a duplicate never burns a seq
// and seqs stay gap-free under concurrent writers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	q      messageQueries
}

// messageQueries are rendered once the schema is known.
type messageQueries struct {
	lookup string
	bump   string
	insert string
	page   string
}

func newMessageQueries(schema string) messageQueries {
	cursors := pgIdent(schema, "channel_cursors")
	messages := pgIdent(schema, "messages")
	return messageQueries{
		lookup: `SELECT ` + messageColumns + ` FROM ` + messages + `
		  WHERE channel_id = $1 AND client_msg_id = $2`,
		bump: `INSERT INTO ` + cursors + ` AS c (channel_id, next_seq)
		 VALUES ($1, 2)
		 ON CONFLICT (channel_id) DO UPDATE
		    SET next_seq = c.next_seq + 1, updated_at = now()
		 RETURNING c.next_seq - 1`,
		insert: `INSERT INTO ` + messages + ` (` + messageColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		page: `SELECT ` + messageColumns + ` FROM ` + messages + `
		  WHERE channel_id = $1 AND seq > $2
		  ORDER BY seq ASC
		  LIMIT $3`,
	}
}

const messageColumns = `channel_id, group_id, client_msg_id, server_msg_id, seq, author_id, text, posted_at`

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the schema holding the messaging tables (default "huddle").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRE.MatchString(schema) {
			return fmt.Errorf("realtime: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	st := &PostgresStore{pool: pool, schema: "huddle"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	st.q = newMessageQueries(st.schema)
	return st, nil
}

func (s *PostgresStore) Close() error { return nil }

// AppendMessage stores in.Text once per (channel, client id) and assigns the next seq.
func (s *PostgresStore) AppendMessage(ctx context.Context, in AppendMessageInput) (AppendMessageResult, error) {
	if in.ChannelID == "" || in.ClientMsgID == "" || in.AuthorID == "" {
		return AppendMessageResult{}, errInvalidAppend
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var out AppendMessageResult
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, in.ChannelID); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		rows, _ := tx.Query(ctx, s.q.lookup, in.ChannelID, in.ClientMsgID)
		prev, err := pgx.CollectOneRow(rows, scanMessage)
		switch {
		case err == nil:
			out = AppendMessageResult{Stored: prev, Duplicated: true}
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		msg := StoredMessage{
			ChannelID:   in.ChannelID,
			GroupID:     in.GroupID,
			ClientMsgID: in.ClientMsgID,
			AuthorID:    in.AuthorID,
			Text:        in.Text,
			PostedAt:    now,
		}
		if msg.ServerMsgID, err = NewMessageID(now); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, s.q.bump, in.ChannelID).Scan(&msg.Seq); err != nil {
			return fmt.Errorf("next seq: %w", err)
		}
		if _, err := tx.Exec(ctx, s.q.insert,
			msg.ChannelID, msg.GroupID, msg.ClientMsgID, msg.ServerMsgID, msg.Seq, msg.AuthorID, msg.Text, msg.PostedAt,
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		out = AppendMessageResult{Stored: msg}
		return nil
	})
	if err != nil {
		return AppendMessageResult{}, err
	}
	return out, nil
}

// FetchHistory returns up to Limit messages after AfterSeq (from the start when nil), oldest first.
func (s *PostgresStore) FetchHistory(ctx context.Context, in FetchHistoryInput) (FetchHistoryResult, error) {
	if in.ChannelID == "" {
		return FetchHistoryResult{}, errors.New("realtime: channel id is required")
	}
	limit := clampHistoryLimit(in.Limit)

	var after int64
	if in.AfterSeq != nil {
		after = *in.AfterSeq
	}

	rows, err := s.pool.Query(ctx, s.q.page, in.ChannelID, after, limit+1)
	if err != nil {
		return FetchHistoryResult{}, err
	}
	msgs, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return FetchHistoryResult{}, err
	}

	if len(msgs) > limit {
		return FetchHistoryResult{Messages: msgs[:limit], HasMore: true}, nil
	}
	return FetchHistoryResult{Messages: msgs}, nil
}

func scanMessage(row pgx.CollectableRow) (StoredMessage, error) {
	var m StoredMessage
	err := row.Scan(&m.ChannelID, &m.GroupID, &m.ClientMsgID, &m.ServerMsgID, &m.Seq, &m.AuthorID, &m.Text, &m.PostedAt)
	return m, err
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
