package transcribe

import (
	"math"
	"testing"
)

// TestModelString checks specialization suffixes apply to English only.
func TestModelString(t *testing.T) {
	tests := []struct {
		model, spec, lang string
		want              string
	}{
		{"nova-2", "", "en", "nova-2"},
		{"nova-2", "general", "en", "nova-2"},
		{"nova-2", "meeting", "en", "nova-2-meeting"},
		{"nova-2", "meeting", "en-US", "nova-2-meeting"},
		{"nova-2", "meeting", "pl", "nova-2"},
		{"nova-2", "meeting", "auto", "nova-2"},
		{"nova-3", "phonecall", "en", "nova-3"},
		{"nova-3", "medical", "en", "nova-3-medical"},
		{"", "", "en", DefaultModel},
		{"custom", "meeting", "en", "custom"},
	}

	for _, tt := range tests {
		if got := ModelString(tt.model, tt.spec, tt.lang); got != tt.want {
			t.Fatalf("ModelString(%q, %q, %q) = %q, want %q", tt.model, tt.spec, tt.lang, got, tt.want)
		}
	}
}

// TestEstimateCost checks per-minute pricing including specialized variants.
func TestEstimateCost(t *testing.T) {
	if got := EstimateCost("nova-2", 600); math.Abs(got-0.043) > 1e-9 {
		t.Fatalf("nova-2 cost = %v, want 0.043", got)
	}
	if got := EstimateCost("nova-2-meeting", 60); math.Abs(got-0.0043) > 1e-9 {
		t.Fatalf("nova-2-meeting cost = %v, want 0.0043", got)
	}
	if got := EstimateCost("unknown", 60); got != 0 {
		t.Fatalf("unknown cost = %v, want 0", got)
	}
}
