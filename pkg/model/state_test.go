package model

import "testing"

func TestJobState_IsActive(t *testing.T) {
	tests := []struct {
		state JobState
		want  bool
	}{
		{JobStateDiscovered, false},
		{JobStateRunning, true},
		{JobStatePending, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsActive(); got != tt.want {
			t.Errorf("%s.IsActive() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestJobState_String(t *testing.T) {
	if JobStatePending.String() != "pending" {
		t.Errorf("String() = %q, want pending", JobStatePending.String())
	}
}
