// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"

	"github.com/conclave-im/conclave/lib/jid"
)

func TestRoundTrip(t *testing.T) {
	type snapshot struct {
		Address    jid.JID           `cbor:"address"`
		Attributes map[string]string `cbor:"attributes"`
		Features   []string          `cbor:"features,omitempty"`
	}
	original := snapshot{
		Address: jid.MustParse("room@muc.example.org"),
		Attributes: map[string]string{
			"affiliation": "member",
			"role":        "participant",
		},
		Features: []string{"muc_membersonly", "muc_nonanonymous"},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded snapshot
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Address != original.Address {
		t.Errorf("address changed: %v", decoded.Address)
	}
	if decoded.Attributes["affiliation"] != "member" {
		t.Errorf("attributes changed: %v", decoded.Attributes)
	}
}

func TestDeterministic(t *testing.T) {
	value := map[string]int{"zebra": 1, "alpha": 2, "mid": 3}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same value produced different encodings")
	}
}

func TestDecodeIntoAny(t *testing.T) {
	data, err := Marshal(map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if asMap["key"] != "value" {
		t.Errorf("decoded content = %v", asMap)
	}
}
