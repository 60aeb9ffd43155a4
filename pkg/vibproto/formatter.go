// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vibproto

import (
	"fmt"
	"time"
)

// FormatEvent formats a parsed event into a human-readable string
func FormatEvent(e Event, at time.Time) string {
	timestamp := at.Format("15:04:05.000")

	switch e.Kind {
	case EventData:
		return fmt.Sprintf("[%s] DATA %s", timestamp, FormatSample(e.Sample))
	case EventEstop:
		return fmt.Sprintf("[%s] ESTOP from probe: %s\n", timestamp, e.Text)
	case EventInfo:
		return fmt.Sprintf("[%s] %s\n", timestamp, e.Text)
	case EventParseFailure:
		return fmt.Sprintf("[%s] PARSE ERROR: %v\n", timestamp, e.Err)
	default:
		return fmt.Sprintf("[%s] UNRECOGNIZED (%s)\n", timestamp, e.Tag)
	}
}

// FormatSample formats the fields of a data sample
func FormatSample(s SensorSample) string {
	result := fmt.Sprintf("t=%d ms status=%s\n", s.Timestamp, s.Status)
	result += fmt.Sprintf("  Accel: x=%.3f y=%.3f z=%.3f g\n", s.Accel.X, s.Accel.Y, s.Accel.Z)
	result += fmt.Sprintf("  Gyro:  x=%.3f y=%.3f z=%.3f\n", s.Gyro.X, s.Gyro.Y, s.Gyro.Z)
	result += fmt.Sprintf("  Magnitude: %.3f g\n", s.Magnitude)
	return result
}
