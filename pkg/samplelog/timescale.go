// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package samplelog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// timescaleColumns is the insert column list; one placeholder group per row
const timescaleColumns = "session_id, captured_at, device_ms, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, magnitude, status"

const timescaleColumnCount = 11

const timescaleSchema = `
CREATE TABLE IF NOT EXISTS %s (
	session_id  TEXT             NOT NULL,
	captured_at TIMESTAMPTZ      NOT NULL,
	device_ms   BIGINT           NOT NULL,
	accel_x     DOUBLE PRECISION NOT NULL,
	accel_y     DOUBLE PRECISION NOT NULL,
	accel_z     DOUBLE PRECISION NOT NULL,
	gyro_x      DOUBLE PRECISION NOT NULL,
	gyro_y      DOUBLE PRECISION NOT NULL,
	gyro_z      DOUBLE PRECISION NOT NULL,
	magnitude   DOUBLE PRECISION NOT NULL,
	status      TEXT             NOT NULL,
	UNIQUE (session_id, captured_at, device_ms)
)`

// TimescaleSink writes rows to PostgreSQL/TimescaleDB with idempotent inserts
type TimescaleSink struct {
	db      *sql.DB
	table   string
	session string
}

// OpenTimescale connects with lib/pq and creates the table if missing
func OpenTimescale(ctx context.Context, connString, table, session string) (*TimescaleSink, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewTimescaleSink(db, table, session)
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[vibmon] Logging to TimescaleDB table %s", s.table)
	return s, nil
}

// NewTimescaleSink wraps an open database
func NewTimescaleSink(db *sql.DB, table, session string) *TimescaleSink {
	if table == "" {
		table = "vibration_samples"
	}
	return &TimescaleSink{db: db, table: table, session: session}
}

// InitSchema creates the samples table
func (t *TimescaleSink) InitSchema(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, fmt.Sprintf(timescaleSchema, t.table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.table, err)
	}
	return nil
}

// Name identifies the sink in logs
func (t *TimescaleSink) Name() string { return "timescaledb" }

// WriteBatch inserts all rows in one statement, skipping duplicates
func (t *TimescaleSink) WriteBatch(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.table)
	b.WriteString(" (")
	b.WriteString(timescaleColumns)
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*timescaleColumnCount)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 0; c < timescaleColumnCount; c++ {
			if c > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+c+1)
		}
		b.WriteString(")")

		smp := row.Sample
		args = append(args,
			t.session,
			row.Captured,
			smp.Timestamp,
			smp.Accel.X, smp.Accel.Y, smp.Accel.Z,
			smp.Gyro.X, smp.Gyro.Y, smp.Gyro.Z,
			smp.Magnitude,
			smp.Status,
		)
	}

	b.WriteString(" ON CONFLICT (session_id, captured_at, device_ms) DO NOTHING")

	if _, err := t.db.Exec(b.String(), args...); err != nil {
		return fmt.Errorf("failed to insert %d rows: %w", len(rows), err)
	}
	return nil
}

// Close closes the database
func (t *TimescaleSink) Close() error {
	return t.db.Close()
}
