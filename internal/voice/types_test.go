package voice

import (
	"testing"
)

func TestParsePermission(t *testing.T) {
	tests := []struct {
		input    string
		expected Permission
		wantErr  bool
	}{
		{"", PermissionGranted, false},
		{"granted", PermissionGranted, false},
		{"Authorized", PermissionGranted, false},
		{"denied", PermissionDenied, false},
		{" restricted ", PermissionRestricted, false},
		{"not_determined", PermissionUndetermined, false},
		{"maybe", PermissionUndetermined, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePermission(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestStopReason_Restarts(t *testing.T) {
	restarting := map[StopReason]bool{
		StopManual:           false,
		StopUserPause:        false,
		StopTTS:              false,
		StopStartFailed:      false,
		StopInactivity:       true,
		StopFinal:            true,
		StopRecognitionError: true,
	}
	for reason, expected := range restarting {
		if got := reason.restarts(); got != expected {
			t.Errorf("%s: expected restarts=%v, got %v", reason, expected, got)
		}
	}
}

func TestState_String(t *testing.T) {
	if StateStoppingForRestart.String() != "stopping_for_restart" {
		t.Errorf("Unexpected name %q", StateStoppingForRestart.String())
	}
	text, err := StateUserPaused.MarshalText()
	if err != nil || string(text) != "user_paused" {
		t.Errorf("Unexpected text %q, %v", text, err)
	}
}
