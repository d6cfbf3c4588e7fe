package storage

import (
	"encoding/json"
	"testing"
)

func TestSettingsWireNames(t *testing.T) {
	data, err := json.Marshal(DefaultSettings())
	if err != nil {
		t.Fatalf("marshal settings: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal settings: %v", err)
	}

	for _, key := range []string{"notificationIntervalMs", "soundEnabled", "notificationPermission", "quietTimes"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("settings JSON %s lacks %q", data, key)
		}
	}
	if got := string(fields["notificationIntervalMs"]); got != "15000" {
		t.Errorf("notificationIntervalMs = %s, want 15000", got)
	}
}
