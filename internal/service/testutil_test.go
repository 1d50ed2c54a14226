package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"roleshop-api/internal/cache"
	"roleshop-api/internal/event"
	"roleshop-api/internal/model"
	"roleshop-api/internal/repository"
)

// fakeAdapter is an in-memory stand-in for the external role platform.
type fakeAdapter struct {
	mu          sync.Mutex
	nextRole    int
	roles       map[string]string          // roleRef -> label
	assignments map[string]map[string]bool // roleRef -> userID set
	failAll     bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		roles:       make(map[string]string),
		assignments: make(map[string]map[string]bool),
	}
}

func (f *fakeAdapter) Materialize(ctx context.Context, label, color string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", fmt.Errorf("platform unavailable")
	}
	f.nextRole++
	ref := fmt.Sprintf("role-%d", f.nextRole)
	f.roles[ref] = label
	f.assignments[ref] = make(map[string]bool)
	return ref, nil
}

func (f *fakeAdapter) Assignments(ctx context.Context, roleRef string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, fmt.Errorf("platform unavailable")
	}
	var users []string
	for u := range f.assignments[roleRef] {
		users = append(users, u)
	}
	return users, nil
}

func (f *fakeAdapter) Grant(ctx context.Context, roleRef, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return fmt.Errorf("platform unavailable")
	}
	if f.assignments[roleRef] == nil {
		f.assignments[roleRef] = make(map[string]bool)
	}
	f.assignments[roleRef][userID] = true
	return nil
}

func (f *fakeAdapter) Revoke(ctx context.Context, roleRef, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return fmt.Errorf("platform unavailable")
	}
	delete(f.assignments[roleRef], userID)
	return nil
}

func (f *fakeAdapter) DeleteRole(ctx context.Context, roleRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return fmt.Errorf("platform unavailable")
	}
	delete(f.roles, roleRef)
	delete(f.assignments, roleRef)
	return nil
}

func (f *fakeAdapter) Ping(ctx context.Context) error { return nil }

func (f *fakeAdapter) holders(roleRef string) map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.assignments[roleRef]))
	for u := range f.assignments[roleRef] {
		out[u] = true
	}
	return out
}

// fakePublisher records every published event.
type fakePublisher struct {
	mu     sync.Mutex
	events []event.RoleEvent
}

func (f *fakePublisher) PublishRoleEvent(ev *event.RoleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) byType(eventType string) []event.RoleEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.RoleEvent
	for _, ev := range f.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// fakeMembers maps account ids to external users as "u-<account>".
type fakeMembers struct{}

func (fakeMembers) Resolve(ctx context.Context, accountID string) (*model.MemberIdentity, error) {
	return &model.MemberIdentity{
		AccountID:      accountID,
		ExternalUserID: "u-" + accountID,
		Username:       accountID,
		IsActive:       true,
	}, nil
}

func (fakeMembers) Ping(ctx context.Context) error { return nil }

// testEnv wires real SQLite repositories to fake integrations.
type testEnv struct {
	repo      repository.ShopRepository
	history   repository.HistoryRepository
	adapter   *fakeAdapter
	publisher *fakePublisher
	config    *ConfigService
	shop      *ShopService
	sharing   *SharingService
	auctions  *AuctionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	repo, err := repository.NewSQLiteShopRepository(filepath.Join(dir, "shop.db"))
	if err != nil {
		t.Fatalf("failed to create shop repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	history, err := repository.NewSQLiteHistoryRepository(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("failed to create history repository: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	env := &testEnv{
		repo:      repo,
		history:   history,
		adapter:   newFakeAdapter(),
		publisher: &fakePublisher{},
	}
	env.config = NewConfigService(repo, cache.NewMemoryCache(), 0)
	env.shop = NewShopService(repo, history, fakeMembers{}, env.adapter, env.publisher, env.config)
	env.sharing = NewSharingService(repo, fakeMembers{}, env.adapter, env.config, env.shop)
	env.auctions = NewAuctionService(repo, env.adapter, env.publisher, env.config, env.shop)
	return env
}

func (env *testEnv) fund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	if _, err := env.repo.Credit(context.Background(), accountID, amount); err != nil {
		t.Fatalf("failed to fund %s: %v", accountID, err)
	}
}

func (env *testEnv) scheduler(cfg SchedulerConfig) *MaintenanceScheduler {
	return NewMaintenanceScheduler(
		env.repo, env.history, fakeMembers{}, env.adapter, env.publisher,
		env.auctions, env.shop, cfg)
}

// reconcile runs one sweep so external roles catch up with the database.
func (env *testEnv) reconcile(t *testing.T) {
	t.Helper()
	if err := env.scheduler(SchedulerConfig{}).RunNow(); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
}

// entitlement re-reads an entitlement after a sweep may have changed it.
func (env *testEnv) entitlement(t *testing.T, id string) *model.Entitlement {
	t.Helper()
	ent, err := env.repo.GetEntitlement(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load entitlement %s: %v", id, err)
	}
	return ent
}

func (env *testEnv) actions(t *testing.T, accountID string) []string {
	t.Helper()
	recs, err := env.history.ListByAccount(context.Background(), accountID, 100)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	var actions []string
	for _, rec := range recs {
		actions = append(actions, rec.ActionType)
	}
	return actions
}

func hasAction(actions []string, want string) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}
