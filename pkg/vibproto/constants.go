// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vibproto decodes the line-oriented telemetry protocol spoken by the
// vibration probe firmware.
//
// Every frame is one ASCII line of comma-separated fields. The first field is
// a tag identifying the frame kind:
//
//	VIB:DATA,<ts_ms>,<ax>,<ay>,<az>,<gx>,<gy>,<gz>,<mag>,<status>
//	VIB:ESTOP
//	VIB:STATUS,...  VIB:BOOT,...  VIB:HEADER,...
//
// Any other tag is ignored by consumers.
package vibproto

// Frame tags
const (
	TagData   = "VIB:DATA"
	TagEstop  = "VIB:ESTOP"
	TagStatus = "VIB:STATUS"
	TagBoot   = "VIB:BOOT"
	TagHeader = "VIB:HEADER"
)

// Field layout of a VIB:DATA frame
const (
	DataFieldCount = 10

	fieldTag       = 0
	fieldTimestamp = 1
	fieldAccelX    = 2
	fieldAccelY    = 3
	fieldAccelZ    = 4
	fieldGyroX     = 5
	fieldGyroY     = 6
	fieldGyroZ     = 7
	fieldMagnitude = 8
	fieldStatus    = 9
)

// FieldDelimiter separates fields within a frame
const FieldDelimiter = ","

// Remote status labels
const (
	LabelOK       = "OK"
	LabelWarning  = "WARNING"
	LabelCritical = "CRITICAL"
	LabelEstop    = "ESTOP"
)

// Probe sensor limits (MPU6050 configured for ±4 g and ±500 deg/s)
const (
	AccelRangeG     = 4.0
	GyroRangeDegSec = 500.0
)

// Default probe link parameters
const (
	DefaultBaudRate   = 115200
	DefaultSampleRate = 100 // Hz
)

var fieldNames = [DataFieldCount]string{
	"tag", "time_ms",
	"accel_x", "accel_y", "accel_z",
	"gyro_x", "gyro_y", "gyro_z",
	"magnitude", "status",
}

// FieldName returns the column name of a VIB:DATA field index
func FieldName(index int) string {
	if index < 0 || index >= DataFieldCount {
		return "unknown"
	}
	return fieldNames[index]
}
