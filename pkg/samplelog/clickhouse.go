// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package samplelog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse sink settings
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// ClickHouseSink writes rows to a MergeTree table with batch inserts
type ClickHouseSink struct {
	conn    driver.Conn
	table   string
	session string
	timeout time.Duration
}

const clickHouseSchema = `
CREATE TABLE IF NOT EXISTS %s (
	session_id  String,
	captured_at DateTime64(3),
	device_ms   Int64,
	accel_x     Float64,
	accel_y     Float64,
	accel_z     Float64,
	gyro_x      Float64,
	gyro_y      Float64,
	gyro_z      Float64,
	magnitude   Float64,
	status      LowCardinality(String)
) ENGINE = MergeTree()
ORDER BY (session_id, captured_at)
`

// NewClickHouseSink connects, pings and creates the table if missing
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig, session string) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := newClickHouseSink(conn, cfg.Table, session)
	if err := s.initSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Printf("[vibmon] Logging to ClickHouse at %s (table %s)", cfg.Addr, s.table)
	return s, nil
}

func newClickHouseSink(conn driver.Conn, table, session string) *ClickHouseSink {
	if table == "" {
		table = "vibration_samples"
	}
	return &ClickHouseSink{
		conn:    conn,
		table:   table,
		session: session,
		timeout: 10 * time.Second,
	}
}

func (s *ClickHouseSink) initSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf(clickHouseSchema, s.table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Name identifies the sink in logs
func (s *ClickHouseSink) Name() string { return "clickhouse" }

// WriteBatch sends rows as one native batch insert
func (s *ClickHouseSink) WriteBatch(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("failed to prepare ClickHouse batch: %w", err)
	}

	for _, row := range rows {
		smp := row.Sample
		if err := batch.Append(
			s.session,
			row.Captured,
			smp.Timestamp,
			smp.Accel.X, smp.Accel.Y, smp.Accel.Z,
			smp.Gyro.X, smp.Gyro.Y, smp.Gyro.Z,
			smp.Magnitude,
			smp.Status,
		); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append ClickHouse row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send ClickHouse batch: %w", err)
	}
	return nil
}

// Close closes the connection
func (s *ClickHouseSink) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close ClickHouse connection: %w", err)
	}
	return nil
}
