// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package samplelog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CSVHeader is the first row of every CSV log
var CSVHeader = []string{
	"timestamp", "time_ms",
	"accel_x", "accel_y", "accel_z",
	"gyro_x", "gyro_y", "gyro_z",
	"magnitude", "status",
}

// CSVFileName returns the log file name for a run started at start
func CSVFileName(start time.Time) string {
	return start.Format("vibration_log_20060102_150405.csv")
}

// CSVSink appends rows to a CSV file
type CSVSink struct {
	w      *csv.Writer
	closer io.Closer
	path   string
}

// NewCSVSink creates the log file in dir and writes the header
func NewCSVSink(dir string, start time.Time) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, CSVFileName(start))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	s, err := newCSVSink(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.path = path
	log.Printf("[vibmon] Logging to %s", path)
	return s, nil
}

func newCSVSink(w io.Writer, closer io.Closer) (*CSVSink, error) {
	s := &CSVSink{w: csv.NewWriter(w), closer: closer}
	if err := s.w.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return s, nil
}

// Name identifies the sink in logs
func (s *CSVSink) Name() string { return "csv" }

// Path returns the log file path, empty for writer-backed sinks
func (s *CSVSink) Path() string { return s.path }

// WriteBatch appends rows and flushes them to the file
func (s *CSVSink) WriteBatch(rows []Row) error {
	for _, row := range rows {
		if err := s.w.Write(csvRecord(row)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the file
func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func csvRecord(row Row) []string {
	smp := row.Sample
	return []string{
		row.Captured.Format(time.RFC3339Nano),
		strconv.FormatInt(smp.Timestamp, 10),
		formatValue(smp.Accel.X),
		formatValue(smp.Accel.Y),
		formatValue(smp.Accel.Z),
		formatValue(smp.Gyro.X),
		formatValue(smp.Gyro.Y),
		formatValue(smp.Gyro.Z),
		formatValue(smp.Magnitude),
		smp.Status,
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
