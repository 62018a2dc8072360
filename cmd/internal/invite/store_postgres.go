package invite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists invites in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "huddle").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "huddle"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

const inviteColumns = `id, group_id, created_by, created_at, expires_at, max_uses, used_count, revoked_at`

func scanInvite(row pgx.Row) (Invite, error) {
	var (
		out       Invite
		createdBy *string
	)
	err := row.Scan(&out.ID, &out.GroupID, &createdBy, &out.CreatedAt, &out.ExpiresAt, &out.MaxUses, &out.UsedCount, &out.RevokedAt)
	if err != nil {
		return Invite{}, err
	}
	if createdBy != nil {
		out.CreatedBy = *createdBy
	}
	return out, nil
}

// Create inserts a new invite record.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Invite, error) {
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.TokenHash) == "" || in.MaxUses < 0 {
		return Invite{}, ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.tbl()+` (id, token_hash, group_id, created_by, created_at, expires_at, max_uses, used_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0)`,
		in.ID, in.TokenHash, in.GroupID, nilIfEmpty(in.CreatedBy), in.CreatedAt, in.ExpiresAt, in.MaxUses,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Invite{}, ErrInvalidInput
		}
		return Invite{}, err
	}
	return in.Invite, nil
}

// GetByTokenHash fetches an invite by token hash.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Invite, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return Invite{}, ErrInvalidInput
	}

	out, err := scanInvite(s.pool.QueryRow(ctx,
		`SELECT `+inviteColumns+` FROM `+s.tbl()+` WHERE token_hash = $1`,
		tokenHash,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invite{}, ErrNotFound
		}
		return Invite{}, err
	}
	return out, nil
}

// Consume increments used_count when the invite is still active.
func (s *PostgresStore) Consume(ctx context.Context, tokenHash string, now time.Time) (Invite, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return Invite{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	out, err := scanInvite(s.pool.QueryRow(ctx,
		`UPDATE `+s.tbl()+`
		    SET used_count = used_count + 1
		  WHERE token_hash = $1
		    AND revoked_at IS NULL
		    AND expires_at > $2
		    AND (max_uses = 0 OR used_count < max_uses)
		RETURNING `+inviteColumns,
		tokenHash, now,
	))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Invite{}, err
	}

	// Distinguish not-found vs not-active.
	if _, selErr := s.GetByTokenHash(ctx, tokenHash); selErr != nil {
		return Invite{}, selErr
	}
	return Invite{}, ErrNotActive
}

// Revoke stamps revoked_at once; revoking twice keeps the first stamp.
func (s *PostgresStore) Revoke(ctx context.Context, groupID, inviteID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.tbl()+`
		    SET revoked_at = COALESCE(revoked_at, $3)
		  WHERE id = $1 AND group_id = $2`,
		inviteID, groupID, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) tbl() string {
	return pgx.Identifier{s.schema, "group_invites"}.Sanitize()
}

func nilIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
