// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vibproto

import (
	"strings"
	"testing"
	"time"
)

func TestValidateSample_Plausible(t *testing.T) {
	s := SensorSample{
		Accel:     Vector3{X: 0.1, Y: -0.2, Z: 1.0},
		Gyro:      Vector3{X: 10, Y: -20, Z: 30},
		Magnitude: 1.02,
		Status:    LabelOK,
	}
	if anomalies := ValidateSample(s); len(anomalies) != 0 {
		t.Errorf("Expected no anomalies, got %v", anomalies)
	}
}

func TestValidateSample_Anomalies(t *testing.T) {
	tests := []struct {
		name   string
		sample SensorSample
		want   AnomalyType
	}{
		{"accel out of range", SensorSample{Accel: Vector3{Z: -4.5}, Status: LabelOK}, AnomalyAccelRange},
		{"gyro out of range", SensorSample{Gyro: Vector3{Y: 720}, Status: LabelOK}, AnomalyGyroRange},
		{"negative magnitude", SensorSample{Magnitude: -0.1, Status: LabelOK}, AnomalyNegativeMagnitude},
		{"unknown label", SensorSample{Status: "BOGUS"}, AnomalyUnknownStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anomalies := ValidateSample(tt.sample)
			if len(anomalies) != 1 {
				t.Fatalf("Expected 1 anomaly, got %d: %v", len(anomalies), anomalies)
			}
			if anomalies[0].Type != tt.want {
				t.Errorf("Type = %v, want %v", anomalies[0].Type, tt.want)
			}
			if anomalies[0].Error() == "" {
				t.Error("Anomaly should have a message")
			}
		})
	}
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 6e6, time.UTC)

	data := FormatEvent(ParseLine("VIB:DATA,1000,0.1,0.2,0.3,0,0,0,9.8,OK"), at)
	if !strings.HasPrefix(data, "[03:04:05.006] DATA t=1000 ms status=OK") {
		t.Errorf("Unexpected data format: %q", data)
	}
	if !strings.Contains(data, "Magnitude: 9.800 g") {
		t.Errorf("Expected magnitude line, got %q", data)
	}

	if got := FormatEvent(ParseLine("VIB:ESTOP"), at); !strings.Contains(got, "ESTOP from probe") {
		t.Errorf("Unexpected estop format: %q", got)
	}
	if got := FormatEvent(ParseLine("VIB:DATA,1"), at); !strings.Contains(got, "PARSE ERROR") {
		t.Errorf("Unexpected failure format: %q", got)
	}
	if got := FormatEvent(ParseLine("NOISE"), at); !strings.Contains(got, "UNRECOGNIZED (NOISE)") {
		t.Errorf("Unexpected unrecognized format: %q", got)
	}
}
