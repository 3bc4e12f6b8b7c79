package lifecycle

import "testing"

func TestNormalizeState(t *testing.T) {
	tests := map[string]string{
		"running":       StateRunning,
		"RUNNING":       StateRunning,
		"active":        StateRunning,
		"provisioning":  StatePending,
		"booting":       StatePending,
		"new":           StatePending,
		"STAGING":       StatePending,
		"initializing":  StatePending,
		"offline":       StateStopped,
		"off":           StateStopped,
		"stopping":      StateStopped,
		"shutting-down": StateStopped,
		"archive":       StateTerminated,
		"terminated":    StateTerminated,
		"DELETING":      StateTerminated,
		"crashed":       StateError,
		"ERROR":         StateError,
		"rebooting":     StatePending,
		"":              StatePending,
	}

	for raw, want := range tests {
		if got := NormalizeState(raw); got != want {
			t.Errorf("NormalizeState(%q) = %q, want %q", raw, got, want)
		}
	}
}
