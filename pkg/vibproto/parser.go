// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vibproto

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EventKind identifies what a parsed line turned out to be
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventData
	EventEstop
	EventInfo
	EventParseFailure
)

// String returns a short name for the event kind
func (k EventKind) String() string {
	switch k {
	case EventUnrecognized:
		return "unrecognized"
	case EventData:
		return "data"
	case EventEstop:
		return "estop"
	case EventInfo:
		return "info"
	case EventParseFailure:
		return "parse_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is the result of parsing one line.
// Sample is only meaningful for EventData and Err only for EventParseFailure.
type Event struct {
	Kind   EventKind
	Tag    string
	Sample SensorSample
	Text   string
	Err    error
}

// Parse errors
var (
	ErrFieldCount   = errors.New("wrong field count")
	ErrInvalidField = errors.New("invalid field")
)

// ParseError describes a malformed VIB:DATA frame
type ParseError struct {
	Field  int // index of the offending field, -1 for field count errors
	Value  string
	Reason error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("malformed %s frame: %v (%s)", TagData, e.Reason, e.Value)
	}
	return fmt.Sprintf("malformed %s frame: %v %s=%q", TagData, e.Reason, FieldName(e.Field), e.Value)
}

// Unwrap exposes the sentinel reason to errors.Is
func (e *ParseError) Unwrap() error {
	return e.Reason
}

// ParseLine decodes a single protocol line.
//
// It never fails: malformed data frames come back as EventParseFailure and
// unknown tags as EventUnrecognized. No state is kept between calls.
func ParseLine(line string) Event {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, FieldDelimiter)
	tag := fields[fieldTag]

	switch tag {
	case TagData:
		sample, err := parseData(fields)
		if err != nil {
			return Event{Kind: EventParseFailure, Tag: tag, Text: line, Err: err}
		}
		return Event{Kind: EventData, Tag: tag, Sample: sample, Text: line}

	case TagEstop:
		return Event{Kind: EventEstop, Tag: tag, Text: line}

	case TagStatus, TagBoot, TagHeader:
		return Event{Kind: EventInfo, Tag: tag, Text: line}

	default:
		return Event{Kind: EventUnrecognized, Tag: tag, Text: line}
	}
}

// parseData converts the fields of a VIB:DATA frame into a sample.
// Either every field converts or an error is returned.
func parseData(fields []string) (SensorSample, error) {
	if len(fields) != DataFieldCount {
		return SensorSample{}, &ParseError{
			Field:  -1,
			Value:  fmt.Sprintf("got %d, want %d", len(fields), DataFieldCount),
			Reason: ErrFieldCount,
		}
	}

	raw := strings.TrimSpace(fields[fieldTimestamp])
	timestamp, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return SensorSample{}, &ParseError{Field: fieldTimestamp, Value: raw, Reason: ErrInvalidField}
	}

	var values [fieldMagnitude - fieldAccelX + 1]float64
	for i := range values {
		index := fieldAccelX + i
		v, err := parseFloat(fields[index])
		if err != nil {
			return SensorSample{}, &ParseError{Field: index, Value: fields[index], Reason: ErrInvalidField}
		}
		values[i] = v
	}

	return SensorSample{
		Timestamp: timestamp,
		Accel:     Vector3{X: values[0], Y: values[1], Z: values[2]},
		Gyro:      Vector3{X: values[3], Y: values[4], Z: values[5]},
		Magnitude: values[6],
		Status:    strings.TrimSpace(fields[fieldStatus]),
	}, nil
}

// parseFloat rejects NaN and infinities so they never reach the statistics
func parseFloat(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", field)
	}
	return v, nil
}
