package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestZoneDelta_LinkOnlyOmitsStateFields(t *testing.T) {
	delta := ZoneDelta{
		ZoneName:  "kitchen",
		EventID:   "evt-1",
		Seq:       7,
		Links:     map[string]LinkSnapshot{"a|b": {SampleCount: 3, LastRSSI: -60}},
		Timestamp: 1756720800,
		Topic:     "home/kitchen/presence",
	}

	payload, err := json.Marshal(&delta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	body := string(payload)

	// 未变化的字段不出现在增量文档里
	for _, absent := range []string{`"state"`, `"occupied"`, `"occupied_since"`} {
		if strings.Contains(body, absent) {
			t.Errorf("Link-only delta should omit %s, got %s", absent, body)
		}
	}

	// Topic 只是路由提示，不进入载荷
	if strings.Contains(body, "home/kitchen/presence") {
		t.Errorf("Topic must not appear in payload, got %s", body)
	}

	if delta.HasStateChange() {
		t.Error("Link-only delta must not report a state change")
	}
}

func TestZoneDelta_StateChangeIncluded(t *testing.T) {
	state := ZoneStateOccupied
	occupied := true
	delta := ZoneDelta{
		ZoneName: "kitchen",
		Seq:      8,
		State:    &state,
		Occupied: &occupied,
	}

	payload, err := json.Marshal(&delta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(string(payload), `"state":"OCCUPIED"`) {
		t.Errorf("Expected state in payload, got %s", payload)
	}
	if !delta.HasStateChange() {
		t.Error("Delta with state must report a state change")
	}
}
