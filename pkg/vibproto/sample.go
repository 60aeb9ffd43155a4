// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vibproto

// Vector3 is a three-axis reading
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// SensorSample is one decoded VIB:DATA record.
//
// Timestamp is the probe's monotonic clock in milliseconds. Accel is in g,
// Gyro in the probe's angular-rate units. Magnitude is computed by the probe.
type SensorSample struct {
	Timestamp int64
	Accel     Vector3
	Gyro      Vector3
	Magnitude float64
	Status    string
}

// SafetyStatus returns the status the label maps to under policy
func (s SensorSample) SafetyStatus(policy StatusPolicy) SafetyStatus {
	return policy.Resolve(s.Status)
}
