package models

import "testing"

func TestHandRaiseStatusPredicates(t *testing.T) {
	tests := []struct {
		status   HandRaiseStatus
		terminal bool
		inQueue  bool
	}{
		{HandRaiseStatusRaised, false, true},
		{HandRaiseStatusAcknowledged, false, true},
		{HandRaiseStatusActive, false, false},
		{HandRaiseStatusCompleted, true, false},
		{HandRaiseStatusDismissed, true, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.terminal)
		}
		if got := tt.status.InQueue(); got != tt.inQueue {
			t.Errorf("InQueue(%s) = %v, want %v", tt.status, got, tt.inQueue)
		}
		if !tt.status.IsValid() {
			t.Errorf("IsValid(%s) = false, want true", tt.status)
		}
	}

	if HandRaiseStatus("WAVING").IsValid() {
		t.Error("IsValid(WAVING) = true, want false")
	}
}
