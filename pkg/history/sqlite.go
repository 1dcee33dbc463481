/*
 * Copyright 2025 the whatstrax authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sifary/whatstrax/pkg/models"
)

// SqliteStore is a durable history sink. The per-target cap is enforced on
// every append by deleting rows beyond the newest maxPerTarget.
type SqliteStore struct {
	db           *sql.DB
	maxPerTarget int
}

var _ Sink = (*SqliteStore)(nil)

// NewSqliteStore opens (or creates) the database and initializes the schema.
func NewSqliteStore(cfg *Config) (*SqliteStore, error) {
	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SqliteStore{db: db, maxPerTarget: cfg.MaxPerTarget}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SqliteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS presence_samples (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		target          TEXT NOT NULL,
		platform        TEXT NOT NULL,
		state           TEXT NOT NULL,
		rtt_ms          INTEGER NOT NULL,
		smoothed_rtt_ms INTEGER NOT NULL,
		timeout         INTEGER NOT NULL DEFAULT 0,
		measured_at     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_target ON presence_samples(target, id);
	`

	_, err := s.db.Exec(schema)

	return err
}

// Append implements Sink.
func (s *SqliteStore) Append(ctx context.Context, target string, sample *models.PresenceSample) error {
	timeout := 0
	if sample.Timeout {
		timeout = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO presence_samples (target, platform, state, rtt_ms, smoothed_rtt_ms, timeout, measured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		target, sample.Platform, string(sample.State), sample.RTTMillis,
		sample.SmoothedRTTMillis, timeout, sample.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	// Drop oldest beyond the cap.
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM presence_samples WHERE target = ? AND id NOT IN (
			SELECT id FROM presence_samples WHERE target = ? ORDER BY id DESC LIMIT ?
		)`,
		target, target, s.maxPerTarget)
	if err != nil {
		return fmt.Errorf("prune samples: %w", err)
	}

	return nil
}

// Points implements Sink, returning up to limit newest samples, oldest
// first.
func (s *SqliteStore) Points(ctx context.Context, target string, limit int) ([]models.PresenceSample, error) {
	if limit <= 0 || limit > s.maxPerTarget {
		limit = s.maxPerTarget
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT target, platform, state, rtt_ms, smoothed_rtt_ms, timeout, measured_at
		 FROM (
			SELECT * FROM presence_samples WHERE target = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		target, limit)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var points []models.PresenceSample

	for rows.Next() {
		var (
			p          models.PresenceSample
			state      string
			timeout    int
			measuredAt string
		)

		if err := rows.Scan(&p.Target, &p.Platform, &state, &p.RTTMillis,
			&p.SmoothedRTTMillis, &timeout, &measuredAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}

		p.State = models.PresenceState(state)
		p.Timeout = timeout != 0

		if ts, err := time.Parse(time.RFC3339Nano, measuredAt); err == nil {
			p.Timestamp = ts
		}

		points = append(points, p)
	}

	return points, rows.Err()
}

// Close implements Sink.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}
