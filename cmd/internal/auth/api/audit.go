package authapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditInsertTimeout = 2 * time.Second

// auditor records security events to slog and, when a pool is configured,
// to audit_log. Database failures are logged and otherwise ignored.
type auditor struct {
	log   *slog.Logger
	pool  *pgxpool.Pool
	table string
}

func newAuditor(log *slog.Logger, pool *pgxpool.Pool, schema string) *auditor {
	if schema == "" {
		schema = "huddle"
	}
	return &auditor{log: log, pool: pool, table: pgx.Identifier{schema, "audit_log"}.Sanitize()}
}

type auditEvent struct {
	Action   string
	UserID   string
	DeviceID string
	IP       net.IP
	UA       string
	Meta     map[string]any
}

func (a *auditor) record(ctx context.Context, ev auditEvent) {
	if a == nil {
		return
	}
	ev.Action = strings.TrimSpace(ev.Action)
	if ev.Action == "" {
		return
	}

	attrs := []any{"action", ev.Action}
	if ev.UserID != "" {
		attrs = append(attrs, "user_id", ev.UserID)
	}
	if ev.IP != nil {
		attrs = append(attrs, "ip", ev.IP.String())
	}
	for k, v := range ev.Meta {
		attrs = append(attrs, k, v)
	}
	a.log.Info("auth.audit", attrs...)

	if a.pool == nil {
		return
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	// Bounded, and detached from request cancellation.
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditInsertTimeout)
	defer cancel()

	_, err := a.pool.Exec(ictx, `
		INSERT INTO `+a.table+` (
			user_id, device_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, now(), $4, $5, $6::jsonb)
	`, trimOrNil(ev.UserID), trimOrNil(ev.DeviceID), ev.Action, ipVal, trimOrNil(ev.UA), metaVal)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", ev.Action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
