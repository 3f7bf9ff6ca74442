// ABOUTME: Tests for quota status derivation
// ABOUTME: Covers near-limit and at-limit thresholds and the unlimited sentinel
package storage

import (
	"testing"

	"github.com/pollpilot/pollchat/internal/localstore"
)

func TestNewQuotaStatus(t *testing.T) {
	tests := []struct {
		name      string
		used      int
		limit     int
		remaining int
		near      bool
		at        bool
	}{
		{"plenty left", 2, 10, 8, false, false},
		{"near limit", 8, 10, 2, true, false},
		{"one left", 9, 10, 1, true, false},
		{"at limit", 10, 10, 0, true, true},
		{"over limit clamps", 12, 10, 0, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newQuotaStatus(tt.used, tt.limit, true)
			if s.Remaining != tt.remaining {
				t.Errorf("Remaining = %d, want %d", s.Remaining, tt.remaining)
			}
			if s.IsNearLimit != tt.near {
				t.Errorf("IsNearLimit = %v, want %v", s.IsNearLimit, tt.near)
			}
			if s.IsAtLimit != tt.at {
				t.Errorf("IsAtLimit = %v, want %v", s.IsAtLimit, tt.at)
			}
		})
	}
}

func TestNewQuotaStatus_Unlimited(t *testing.T) {
	s := newQuotaStatus(5000, localstore.UnlimitedConversations, false)
	if s.IsNearLimit || s.IsAtLimit {
		t.Error("unlimited quota reported a limit state")
	}
	if s.Remaining != localstore.UnlimitedConversations {
		t.Errorf("Remaining = %d, want unlimited sentinel", s.Remaining)
	}
}
