// SPDX-License-Identifier: MIT

package outcome

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

const schemaVersion = 1

// ColdLog is the append-mostly sqlite record of terminal session outcomes,
// partitioned by day and tenant for reporting queries.
type ColdLog struct {
	db *sql.DB
}

// OpenColdLog opens the sqlite database at path with WAL and busy-timeout
// pragmas applied to every pooled connection, and runs migrations.
func OpenColdLog(path string) (*ColdLog, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cold log: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cold log: %w", err)
	}
	c := &ColdLog{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cold log migration: %w", err)
	}
	return c, nil
}

func (c *ColdLog) migrate() error {
	var current int
	if err := c.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schema := `
	CREATE TABLE IF NOT EXISTS session_outcomes (
		session_id     TEXT PRIMARY KEY,
		tenant_id      TEXT NOT NULL,
		day            TEXT NOT NULL,
		outcome        TEXT NOT NULL,
		started_at_ms  INTEGER NOT NULL,
		ended_at_ms    INTEGER NOT NULL,
		event_count    INTEGER NOT NULL,
		interventions  INTEGER NOT NULL,
		dollar_value   REAL NOT NULL,
		converted      BOOLEAN NOT NULL DEFAULT 0,
		last_emotion   TEXT,
		last_section   TEXT,
		user_id        TEXT,
		ltv_usd        REAL NOT NULL DEFAULT 0,
		emotion_counts TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_tenant_day ON session_outcomes(tenant_id, day);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Append writes one terminal record. Re-delivery of the same session
// overwrites, so the recorder's retries stay idempotent.
func (c *ColdLog) Append(rec Record) error {
	if rec.Summary == nil {
		return fmt.Errorf("append %s: record has no summary", rec.SessionID)
	}
	counts, err := json.Marshal(rec.Summary.EmotionCounts)
	if err != nil {
		return fmt.Errorf("encode emotion counts: %w", err)
	}
	query := `
	INSERT INTO session_outcomes (
		session_id, tenant_id, day, outcome,
		started_at_ms, ended_at_ms, event_count, interventions,
		dollar_value, converted, last_emotion, last_section,
		user_id, ltv_usd, emotion_counts
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		outcome = excluded.outcome,
		ended_at_ms = excluded.ended_at_ms,
		event_count = excluded.event_count,
		interventions = excluded.interventions,
		dollar_value = excluded.dollar_value,
		converted = excluded.converted,
		last_emotion = excluded.last_emotion,
		last_section = excluded.last_section,
		emotion_counts = excluded.emotion_counts
	`
	sum := rec.Summary
	_, err = c.db.Exec(query,
		rec.SessionID, rec.TenantID, sum.EndedAt.UTC().Format(time.DateOnly), string(rec.Outcome),
		sum.StartedAt.UnixMilli(), sum.EndedAt.UnixMilli(), sum.EventCount, sum.Interventions,
		sum.DollarValue, sum.Converted, string(sum.LastEmotion), string(sum.LastSection),
		sum.UserID, sum.LTVUSD, string(counts),
	)
	if err != nil {
		return fmt.Errorf("append outcome %s: %w", rec.SessionID, err)
	}
	return nil
}

// TenantStats is one row of the per-tenant daily rollup.
type TenantStats struct {
	Day         string  `json:"day"`
	Sessions    int     `json:"sessions"`
	Converted   int     `json:"converted"`
	DollarValue float64 `json:"dollar_value"`
}

// StatsByTenant aggregates outcomes per day for one tenant, newest first.
func (c *ColdLog) StatsByTenant(tenantID string, limit int) ([]TenantStats, error) {
	rows, err := c.db.Query(`
		SELECT day, COUNT(*), SUM(converted), SUM(dollar_value)
		FROM session_outcomes
		WHERE tenant_id = ?
		GROUP BY day
		ORDER BY day DESC
		LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("tenant stats: %w", err)
	}
	defer rows.Close()

	var out []TenantStats
	for rows.Next() {
		var s TenantStats
		if err := rows.Scan(&s.Day, &s.Sessions, &s.Converted, &s.DollarValue); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *ColdLog) Close() error { return c.db.Close() }
