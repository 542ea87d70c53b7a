// Package ledger persists a durable audit trail of job outcomes and
// discarded notifications, queryable by the Admin API (spec §4.6's
// "DLQ listing" addition; not present in the distilled spec but grounded
// on the teacher's use of modernc.org/sqlite for local durable state).
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fleetforge/compiler-worker/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_outcomes (
	code        TEXT NOT NULL,
	platform    TEXT NOT NULL,
	start_time  INTEGER NOT NULL,
	success     INTEGER NOT NULL,
	msg_public  TEXT,
	msg_internal TEXT,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (code, platform, start_time)
);

CREATE TABLE IF NOT EXISTS discarded_notifications (
	code        TEXT NOT NULL,
	platform    TEXT NOT NULL,
	start_time  INTEGER NOT NULL,
	tries       INTEGER NOT NULL,
	msg_public  TEXT,
	msg_internal TEXT,
	discarded_at INTEGER NOT NULL,
	PRIMARY KEY (code, platform, start_time)
);
`

// Ledger is a local sqlite-backed audit trail.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if absent) the ledger database at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; sqlite serializes anyway
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying connection.
func (l *Ledger) Close() error { return l.db.Close() }

// RecordOutcome upserts the terminal outcome of one job/platform attempt.
func (l *Ledger) RecordOutcome(ctx context.Context, notif *types.Notification) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO job_outcomes (code, platform, start_time, success, msg_public, msg_internal, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, platform, start_time) DO UPDATE SET
			success = excluded.success,
			msg_public = excluded.msg_public,
			msg_internal = excluded.msg_internal,
			recorded_at = excluded.recorded_at
	`, notif.Code, string(notif.Platform), notif.StartTime, boolToInt(notif.Success()), notif.MsgPublic, notif.MsgInternal, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// DiscardedNotification is one notification that exceeded max retries and
// was permanently dropped, surfaced via the Admin API DLQ endpoint.
type DiscardedNotification struct {
	Code        string `json:"code"`
	Platform    string `json:"platform"`
	StartTime   int64  `json:"start_time"`
	Tries       int    `json:"tries"`
	MsgPublic   string `json:"msg_public"`
	MsgInternal string `json:"msg_internal"`
	DiscardedAt int64  `json:"discarded_at"`
}

// RecordDiscard persists one discarded notification.
func (l *Ledger) RecordDiscard(ctx context.Context, notif *types.Notification, tries int) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO discarded_notifications (code, platform, start_time, tries, msg_public, msg_internal, discarded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, platform, start_time) DO UPDATE SET
			tries = excluded.tries,
			discarded_at = excluded.discarded_at
	`, notif.Code, string(notif.Platform), notif.StartTime, tries, notif.MsgPublic, notif.MsgInternal, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record discard: %w", err)
	}
	return nil
}

// ListDiscarded returns all discarded notifications, most recent first.
func (l *Ledger) ListDiscarded(ctx context.Context) ([]DiscardedNotification, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT code, platform, start_time, tries, msg_public, msg_internal, discarded_at
		FROM discarded_notifications ORDER BY discarded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list discarded: %w", err)
	}
	defer rows.Close()

	var out []DiscardedNotification
	for rows.Next() {
		var d DiscardedNotification
		if err := rows.Scan(&d.Code, &d.Platform, &d.StartTime, &d.Tries, &d.MsgPublic, &d.MsgInternal, &d.DiscardedAt); err != nil {
			return nil, fmt.Errorf("scan discarded: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
