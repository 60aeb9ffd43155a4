// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

func TestEncodeState_IntegerKeys(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	data, err := EncodeState(Outputs{Peak: 6.5, Status: vibproto.StatusEstop, EstopTrigger: true}, at)
	if err != nil {
		t.Fatalf("EncodeState: %v", err)
	}

	var m map[int]interface{}
	if err := cbor.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m[StateKeyPeak] != 6.5 {
		t.Errorf("peak = %v", m[StateKeyPeak])
	}
	if m[StateKeyEstop] != true {
		t.Errorf("estop = %v", m[StateKeyEstop])
	}
	if m[StateKeyStatus] != uint64(3) {
		t.Errorf("status = %v (%T)", m[StateKeyStatus], m[StateKeyStatus])
	}

	_, decodedAt, err := DecodeState(data)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if !decodedAt.Equal(at) {
		t.Errorf("time = %v, want %v", decodedAt, at)
	}
}

func TestDecodeState_Invalid(t *testing.T) {
	if _, _, err := DecodeState([]byte{0xff}); err == nil {
		t.Error("Expected error for garbage")
	}

	data, _ := cbor.Marshal(map[int]interface{}{StateKeyStatus: 9})
	if _, _, err := DecodeState(data); err == nil {
		t.Error("Expected error for out-of-range status")
	}
}
