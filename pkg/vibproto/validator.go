// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vibproto

import (
	"fmt"
	"math"
)

// AnomalyType represents different kinds of implausible sample values
type AnomalyType int

const (
	AnomalyAccelRange AnomalyType = iota
	AnomalyGyroRange
	AnomalyNegativeMagnitude
	AnomalyUnknownStatus
)

// Anomaly describes a sample value outside what the probe can physically report.
// Anomalies are advisory and never feed the safety decision.
type Anomaly struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (a *Anomaly) Error() string {
	return a.Message
}

// ValidateSample checks a sample against the probe's sensor ranges.
// Returns an empty slice if the sample is plausible.
func ValidateSample(s SensorSample) []Anomaly {
	anomalies := []Anomaly{}

	axes := []struct {
		name  string
		value float64
	}{
		{"accel_x", s.Accel.X}, {"accel_y", s.Accel.Y}, {"accel_z", s.Accel.Z},
	}
	for _, axis := range axes {
		if math.Abs(axis.value) > AccelRangeG {
			anomalies = append(anomalies, Anomaly{
				Type:    AnomalyAccelRange,
				Message: fmt.Sprintf("%s=%.3f g outside ±%.0f g sensor range", axis.name, axis.value, AccelRangeG),
				Details: map[string]interface{}{"axis": axis.name, "value": axis.value},
			})
		}
	}

	gyro := []struct {
		name  string
		value float64
	}{
		{"gyro_x", s.Gyro.X}, {"gyro_y", s.Gyro.Y}, {"gyro_z", s.Gyro.Z},
	}
	for _, axis := range gyro {
		if math.Abs(axis.value) > GyroRangeDegSec {
			anomalies = append(anomalies, Anomaly{
				Type:    AnomalyGyroRange,
				Message: fmt.Sprintf("%s=%.1f outside ±%.0f deg/s sensor range", axis.name, axis.value, GyroRangeDegSec),
				Details: map[string]interface{}{"axis": axis.name, "value": axis.value},
			})
		}
	}

	if s.Magnitude < 0 {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyNegativeMagnitude,
			Message: fmt.Sprintf("magnitude=%.3f is negative", s.Magnitude),
			Details: map[string]interface{}{"value": s.Magnitude},
		})
	}

	if _, ok := ParseStatus(s.Status); !ok {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyUnknownStatus,
			Message: fmt.Sprintf("unknown status label %q", s.Status),
			Details: map[string]interface{}{"status": s.Status},
		})
	}

	return anomalies
}
