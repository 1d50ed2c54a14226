package rolesync

import "context"

// Adapter talks to the external chat platform's role system. All calls
// are best-effort: callers log failures and rely on the next
// reconciliation pass to converge, so implementations should not retry.
type Adapter interface {
	// Materialize creates the external role object for a label and
	// returns its reference. Called the first time an entitlement is
	// reconciled without one.
	Materialize(ctx context.Context, label, color string) (string, error)

	// Assignments returns the external user ids currently holding the
	// role.
	Assignments(ctx context.Context, roleRef string) ([]string, error)

	// Grant assigns the role to a user; Revoke removes it.
	Grant(ctx context.Context, roleRef, userID string) error
	Revoke(ctx context.Context, roleRef, userID string) error

	// DeleteRole removes the external role object entirely.
	DeleteRole(ctx context.Context, roleRef string) error

	// Ping reports adapter reachability for the health surface.
	Ping(ctx context.Context) error
}
