package groups

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "huddle").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("groups: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
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
		return nil, fmt.Errorf("groups: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) tbl(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func (s *PostgresStore) CreateGroup(ctx context.Context, in CreateGroupInput) (Group, error) {
	g, err := newGroup(in)
	if err != nil {
		return Group{}, err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+s.tbl("groups")+` (id, name, owner_id, room_id, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			g.ID, g.Name, g.OwnerID, g.RoomID, g.CreatedAt,
		); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, c := range g.Channels {
			batch.Queue(
				`INSERT INTO `+s.tbl("channels")+` (id, group_id, name, room_id, position) VALUES ($1, $2, $3, $4, $5)`,
				c.ID, g.ID, c.Name, c.RoomID, i,
			)
		}
		batch.Queue(
			`INSERT INTO `+s.tbl("group_members")+` (group_id, user_id, joined_at) VALUES ($1, $2, $3)`,
			g.ID, g.OwnerID, g.CreatedAt,
		)
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return Group{}, fmt.Errorf("groups: create: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) GroupByID(ctx context.Context, id string) (Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, owner_id, room_id, created_at FROM `+s.tbl("groups")+` WHERE id = $1`,
		strings.TrimSpace(id),
	)
	if err != nil {
		return Group{}, err
	}
	gs, err := s.collect(ctx, rows)
	if err != nil {
		return Group{}, err
	}
	if len(gs) == 0 {
		return Group{}, ErrNotFound
	}
	return gs[0], nil
}

func (s *PostgresStore) GroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT g.id, g.name, g.owner_id, g.room_id, g.created_at
		   FROM `+s.tbl("groups")+` g
		   JOIN `+s.tbl("group_members")+` m ON m.group_id = g.id
		  WHERE m.user_id = $1
		  ORDER BY g.id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, rows)
}

// collect scans group rows and attaches their channels with one extra query.
func (s *PostgresStore) collect(ctx context.Context, rows pgx.Rows) ([]Group, error) {
	gs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Group, error) {
		var g Group
		err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &g.RoomID, &g.CreatedAt)
		return g, err
	})
	if err != nil || len(gs) == 0 {
		return gs, err
	}

	idx := make(map[string]int, len(gs))
	groupIDs := make([]string, 0, len(gs))
	for i, g := range gs {
		idx[g.ID] = i
		groupIDs = append(groupIDs, g.ID)
	}

	chRows, err := s.pool.Query(ctx,
		`SELECT group_id, id, name, room_id
		   FROM `+s.tbl("channels")+`
		  WHERE group_id = ANY($1)
		  ORDER BY group_id, position ASC`,
		groupIDs,
	)
	if err != nil {
		return nil, err
	}
	defer chRows.Close()

	for chRows.Next() {
		var (
			gid string
			c   Channel
		)
		if err := chRows.Scan(&gid, &c.ID, &c.Name, &c.RoomID); err != nil {
			return nil, err
		}
		if i, ok := idx[gid]; ok {
			gs[i].Channels = append(gs[i].Channels, c)
		}
	}
	return gs, chRows.Err()
}

func (s *PostgresStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists, member bool
	err := s.pool.QueryRow(ctx,
		`SELECT
		   EXISTS (SELECT 1 FROM `+s.tbl("groups")+` WHERE id = $1),
		   EXISTS (SELECT 1 FROM `+s.tbl("group_members")+` WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID,
	).Scan(&exists, &member)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return member, nil
}

func (s *PostgresStore) AddMember(ctx context.Context, groupID, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.tbl("group_members")+` (group_id, user_id)
		 SELECT id, $2 FROM `+s.tbl("groups")+` WHERE id = $1
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	// Either already a member or the group does not exist.
	if _, err := s.IsMember(ctx, groupID, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.tbl("group_members")+` WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.IsMember(ctx, groupID, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) RenameGroup(ctx context.Context, groupID, name string) (Group, error) {
	clean, err := cleanName(name)
	if err != nil {
		return Group{}, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.tbl("groups")+` SET name = $2 WHERE id = $1`,
		groupID, clean,
	)
	if err != nil {
		return Group{}, err
	}
	if tag.RowsAffected() == 0 {
		return Group{}, ErrNotFound
	}
	return s.GroupByID(ctx, groupID)
}

func (s *PostgresStore) DeleteGroup(ctx context.Context, groupID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.tbl("groups")+` WHERE id = $1`, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
