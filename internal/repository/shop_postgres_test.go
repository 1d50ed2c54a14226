package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestLiveLabelConflictDetection(t *testing.T) {
	t.Parallel()

	conflict := &pq.Error{Code: "23505", Constraint: "idx_entitlements_live_label"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"live label unique violation", conflict, true},
		{"wrapped violation", fmt.Errorf("failed to insert entitlement: %w", conflict), true},
		{"other unique index", &pq.Error{Code: "23505", Constraint: "entitlements_pkey"}, false},
		{"other pq error", &pq.Error{Code: "40001", Constraint: "idx_entitlements_live_label"}, false},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLiveLabelConflict(tt.err); got != tt.want {
				t.Errorf("expected %v for %v, got %v", tt.want, tt.err, got)
			}
		})
	}
}
