// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package samplelog

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

var fullRow = Row{
	Captured: captured,
	Sample: vibproto.SensorSample{
		Timestamp: 1000,
		Accel:     vibproto.Vector3{X: 0.1, Y: 0.2, Z: 0.98},
		Gyro:      vibproto.Vector3{X: -1.5, Y: 0, Z: 2.25},
		Magnitude: 0.98,
		Status:    vibproto.LabelWarning,
	},
}

// ============================================================
// CSV Sink Tests
// ============================================================

func TestCSVFileName(t *testing.T) {
	if got := CSVFileName(captured); got != "vibration_log_20250601_120000.csv" {
		t.Errorf("CSVFileName = %q", got)
	}
}

func TestCSVSink_WritesHeaderAndRows(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	sink, err := NewCSVSink(dir, captured)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	if err := sink.WriteBatch([]Row{fullRow}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(sink.Path())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Got %d records, want header + 1", len(records))
	}
	if strings.Join(records[0], ",") != "timestamp,time_ms,accel_x,accel_y,accel_z,gyro_x,gyro_y,gyro_z,magnitude,status" {
		t.Errorf("Header = %v", records[0])
	}
	want := []string{"2025-06-01T12:00:00Z", "1000", "0.1", "0.2", "0.98", "-1.5", "0", "2.25", "0.98", "WARNING"}
	for i := range want {
		if records[1][i] != want[i] {
			t.Errorf("Column %s = %q, want %q", CSVHeader[i], records[1][i], want[i])
		}
	}
}

func TestCSVSink_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	first, err := NewCSVSink(dir, captured)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	defer first.Close()

	if _, err := NewCSVSink(dir, captured); err == nil {
		t.Error("Expected error when the log file already exists")
	}
}

// ============================================================
// TimescaleDB Sink Tests
// ============================================================

func TestTimescaleSink_WriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "samples", "session-1")

	expected := regexp.QuoteMeta("INSERT INTO samples (" + timescaleColumns + ") VALUES " +
		"($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11),($12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)" +
		" ON CONFLICT (session_id, captured_at, device_ms) DO NOTHING")
	s := fullRow.Sample
	mock.ExpectExec(expected).
		WithArgs(
			"session-1", captured, int64(1000), 0.1, 0.2, 0.98, -1.5, 0.0, 2.25, 0.98, "WARNING",
			"session-1", captured, int64(1000), 0.1, 0.2, 0.98, -1.5, 0.0, 2.25, s.Magnitude, "WARNING",
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := sink.WriteBatch([]Row{fullRow, fullRow}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSink_EmptyBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	if err := NewTimescaleSink(db, "", "s").WriteBatch(nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSink_InitSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "", "s")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS vibration_samples")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := sink.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSink_ExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("connection reset"))
	if err := NewTimescaleSink(db, "samples", "s").WriteBatch([]Row{fullRow}); err == nil {
		t.Fatal("Expected error")
	}
}

// ============================================================
// ClickHouse Sink Tests
// ============================================================

type fakeClickHouse struct {
	driver.Conn
	execs   []string
	batches []*fakeBatch
	closed  bool
}

func (f *fakeClickHouse) Exec(ctx context.Context, query string, args ...any) error {
	f.execs = append(f.execs, query)
	return nil
}

func (f *fakeClickHouse) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	b := &fakeBatch{query: query}
	f.batches = append(f.batches, b)
	return b, nil
}

func (f *fakeClickHouse) Close() error {
	f.closed = true
	return nil
}

type fakeBatch struct {
	driver.Batch
	query string
	rows  [][]any
	sent  bool
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error { return nil }

func TestClickHouseSink_SchemaAndBatch(t *testing.T) {
	conn := &fakeClickHouse{}
	sink := newClickHouseSink(conn, "", "session-1")

	if err := sink.initSchema(context.Background()); err != nil {
		t.Fatalf("initSchema: %v", err)
	}
	if len(conn.execs) != 1 || !strings.Contains(conn.execs[0], "CREATE TABLE IF NOT EXISTS vibration_samples") {
		t.Errorf("Schema exec = %v", conn.execs)
	}

	if err := sink.WriteBatch([]Row{fullRow, fullRow, fullRow}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(conn.batches) != 1 {
		t.Fatalf("Prepared %d batches, want 1", len(conn.batches))
	}
	b := conn.batches[0]
	if b.query != "INSERT INTO vibration_samples" || !b.sent {
		t.Errorf("Batch query=%q sent=%v", b.query, b.sent)
	}
	if len(b.rows) != 3 || len(b.rows[0]) != timescaleColumnCount {
		t.Fatalf("Batch rows = %d x %d", len(b.rows), len(b.rows[0]))
	}
	if b.rows[0][0] != "session-1" || b.rows[0][10] != "WARNING" {
		t.Errorf("Row = %v", b.rows[0])
	}

	if err := sink.WriteBatch(nil); err != nil || len(conn.batches) != 1 {
		t.Error("Empty batch should be a no-op")
	}

	sink.Close()
	if !conn.closed {
		t.Error("Connection not closed")
	}
}
