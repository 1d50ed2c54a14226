package uid

import "github.com/google/uuid"

// New generates an identifier for entitlements, grants, and history
// records.
func New() string {
	return uuid.New().String()
}
