// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vibproto

import (
	"fmt"
	"strings"
)

// SafetyStatus is the machine health classification published on the control bus.
// The numeric values are part of the bus contract.
type SafetyStatus int

const (
	StatusOk       SafetyStatus = 0
	StatusWarning  SafetyStatus = 1
	StatusCritical SafetyStatus = 2
	StatusEstop    SafetyStatus = 3
)

// String returns the wire label for the status
func (s SafetyStatus) String() string {
	switch s {
	case StatusOk:
		return LabelOK
	case StatusWarning:
		return LabelWarning
	case StatusCritical:
		return LabelCritical
	case StatusEstop:
		return LabelEstop
	default:
		return fmt.Sprintf("STATUS(%d)", int(s))
	}
}

// ParseStatus maps a remote status label to a SafetyStatus.
// ok is false for labels outside the fixed set; the returned status is then
// StatusOk and callers decide the fallback through a StatusPolicy.
func ParseStatus(label string) (SafetyStatus, bool) {
	switch label {
	case LabelOK:
		return StatusOk, true
	case LabelWarning:
		return StatusWarning, true
	case LabelCritical:
		return StatusCritical, true
	case LabelEstop:
		return StatusEstop, true
	default:
		return StatusOk, false
	}
}

// StatusPolicy decides how unrecognized status labels are classified.
// The zero value is fail-open: unknown labels map to StatusOk.
type StatusPolicy struct {
	Unknown SafetyStatus
}

// FailOpen maps unknown labels to StatusOk, matching the probe's historical behavior
var FailOpen = StatusPolicy{Unknown: StatusOk}

// Resolve maps a label to a status, substituting the policy fallback for unknown labels
func (p StatusPolicy) Resolve(label string) SafetyStatus {
	if status, ok := ParseStatus(label); ok {
		return status
	}
	return p.Unknown
}

// ParseStatusPolicy parses a policy name ("ok", "warning", "critical", "estop")
func ParseStatusPolicy(name string) (StatusPolicy, error) {
	status, ok := ParseStatus(strings.ToUpper(strings.TrimSpace(name)))
	if !ok {
		return StatusPolicy{}, fmt.Errorf("unknown status policy %q (use ok, warning, critical or estop)", name)
	}
	return StatusPolicy{Unknown: status}, nil
}
