// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import "github.com/Thermoquad/vibmon/pkg/vibproto"

// Estop sources
const (
	EstopSourceProbe  = "probe"  // VIB:ESTOP frame
	EstopSourceStatus = "status" // data frame carrying the ESTOP label
)

// Classifier maps remote status labels to SafetyStatus and owns the
// safety-stop latch. Once asserted the latch is never cleared here;
// clearing is an operator action on the host.
type Classifier struct {
	policy      vibproto.StatusPolicy
	status      vibproto.SafetyStatus
	estop       bool
	estopSource string
}

// NewClassifier creates a classifier resolving unknown labels with policy
func NewClassifier(policy vibproto.StatusPolicy) *Classifier {
	return &Classifier{policy: policy}
}

// Classify updates the status from a sample's label.
// latched is true when this call asserted the safety-stop.
func (c *Classifier) Classify(label string) (status vibproto.SafetyStatus, latched bool) {
	c.status = c.policy.Resolve(label)
	if c.status == vibproto.StatusEstop {
		latched = c.TriggerEstop(EstopSourceStatus)
	}
	return c.status, latched
}

// TriggerEstop asserts the safety-stop and reports whether it was newly asserted
func (c *Classifier) TriggerEstop(source string) bool {
	if c.estop {
		return false
	}
	c.estop = true
	c.estopSource = source
	return true
}

// Status returns the most recently classified status
func (c *Classifier) Status() vibproto.SafetyStatus {
	return c.status
}

// Estop reports whether the safety-stop is asserted
func (c *Classifier) Estop() bool {
	return c.estop
}

// EstopSource names what first asserted the safety-stop, or ""
func (c *Classifier) EstopSource() string {
	return c.estopSource
}
