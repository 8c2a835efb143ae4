package lsp

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	fixed := DefaultBackoff()
	exp := Backoff{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}

	tests := []struct {
		name    string
		policy  Backoff
		attempt int
		want    time.Duration
	}{
		{"fixed first attempt", fixed, 1, 5 * time.Second},
		{"fixed later attempt", fixed, 7, 5 * time.Second},
		{"exponential first", exp, 1, time.Second},
		{"exponential second", exp, 2, 2 * time.Second},
		{"exponential fourth", exp, 4, 8 * time.Second},
		{"exponential capped", exp, 6, 10 * time.Second},
		{"exponential far past cap", exp, 40, 10 * time.Second},
		{"zero attempt treated as first", exp, 0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()
	if b.Initial != 5*time.Second {
		t.Errorf("Initial = %v, want 5s", b.Initial)
	}
	if b.ResetWindow != 2*time.Minute {
		t.Errorf("ResetWindow = %v, want 2m", b.ResetWindow)
	}
}
