package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
// Schema and table identifiers are quoted with pgx.Identifier.
// EditRefreshTokens loads and rewrites a user's list inside one transaction
// holding the user row lock, so concurrent edits apply one after the other.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "huddle").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "huddle",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, email, password_hash, account_status, username, profile_img, prefers_online_status, created_at`

func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	u, err := newUser(op, in)
	if err != nil {
		return User{}, err
	}

	status, username, profileImg := profileColumns(u.Account)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (
		     id, email, email_norm, password_hash, account_status, username, profile_img,
		     prefers_online_status, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, NormalizeEmail(u.Email), u.PasswordHash, string(status), username, profileImg,
		string(u.PrefersOnlineStatus), u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, conflict(op, field)
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) UserByID(ctx context.Context, id string) (User, error) {
	return s.loadUser(ctx, s.pool, "identity.UserByID", `id = $1`, strings.TrimSpace(id))
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.loadUser(ctx, s.pool, "identity.UserByEmail", `email_norm = $1`, NormalizeEmail(email))
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) loadUser(ctx context.Context, q querier, op, where string, arg string) (User, error) {
	var (
		u          User
		status     string
		username   *string
		profileImg *string
		pref       string
	)

	err := q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+pgIdent(s.schema, "users")+` WHERE `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &status, &username, &profileImg, &pref, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, err
	}
	u.Account = accountFromColumns(status, username, profileImg)
	u.PrefersOnlineStatus = OnlineStatus(pref)

	rows, err := q.Query(ctx,
		`SELECT token, device_id, exp_date
		   FROM `+pgIdent(s.schema, "refresh_tokens")+`
		  WHERE user_id = $1
		  ORDER BY position ASC`,
		u.ID,
	)
	if err != nil {
		return User{}, err
	}
	u.RefreshTokens, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (RefreshCredential, error) {
		var c RefreshCredential
		err := row.Scan(&c.Token, &c.DeviceID, &c.ExpDate)
		return c, err
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) EditRefreshTokens(ctx context.Context, userID string, edit RefreshEdit) (User, error) {
	const op = "identity.EditRefreshTokens"

	var out User
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}, func(tx pgx.Tx) error {
		u, err := s.loadUser(ctx, tx, op, `id = $1 FOR UPDATE`, userID)
		if err != nil {
			return err
		}
		if err := edit(&u); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM `+pgIdent(s.schema, "refresh_tokens")+` WHERE user_id = $1`,
			u.ID,
		); err != nil {
			return err
		}

		if len(u.RefreshTokens) > 0 {
			tokens := u.RefreshTokens
			_, err = tx.CopyFrom(ctx,
				pgx.Identifier{s.schema, "refresh_tokens"},
				[]string{"user_id", "position", "token", "device_id", "exp_date"},
				pgx.CopyFromSlice(len(tokens), func(i int) ([]any, error) {
					c := tokens[i]
					return []any{u.ID, i, c.Token, c.DeviceID, c.ExpDate}, nil
				}),
			)
			if err != nil {
				if field, ok := pgClassifyUniqueViolation(err); ok {
					return conflict(op, field)
				}
				return fmt.Errorf("%s: copy: %w", op, err)
			}
		}

		out = u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (User, error) {
	const op = "identity.UpdateProfile"

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			u          User
			status     string
			username   *string
			profileImg *string
			pref       string
		)
		err := tx.QueryRow(ctx,
			`SELECT id, account_status, username, profile_img, prefers_online_status
			   FROM `+pgIdent(s.schema, "users")+`
			  WHERE id = $1
			  FOR UPDATE`,
			userID,
		).Scan(&u.ID, &status, &username, &profileImg, &pref)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return userNotFound(op)
			}
			return err
		}
		u.Account = accountFromColumns(status, username, profileImg)
		u.PrefersOnlineStatus = OnlineStatus(pref)

		if err := applyProfile(op, &u, in); err != nil {
			return err
		}

		nextStatus, nextUsername, nextImg := profileColumns(u.Account)
		_, err = tx.Exec(ctx,
			`UPDATE `+pgIdent(s.schema, "users")+`
			    SET account_status = $2, username = $3, profile_img = $4, prefers_online_status = $5
			  WHERE id = $1`,
			u.ID, string(nextStatus), nextUsername, nextImg, string(u.PrefersOnlineStatus),
		)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return s.UserByID(ctx, userID)
}

// ---- helpers ----

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "refresh"):
		return "refresh_token", true
	default:
		return "unique", true
	}
}
