package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"roleshop-api/internal/model"
	"roleshop-api/pkg/uid"
)

func newTestHistory(t *testing.T) *SQLiteHistoryRepository {
	t.Helper()
	repo, err := NewSQLiteHistoryRepository(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to create history repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func appendRecord(t *testing.T, repo *SQLiteHistoryRepository, rec model.HistoryRecord) {
	t.Helper()
	rec.ID = uid.New()
	if err := repo.Append(context.Background(), &rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func TestHistoryListByAccount(t *testing.T) {
	t.Parallel()
	repo := newTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	amount := int64(300)
	appendRecord(t, repo, model.HistoryRecord{
		EntitlementID: "ent-1", ActionType: model.ActionPurchase,
		ActorAccountID: "alice", CreatedAt: base,
	})
	appendRecord(t, repo, model.HistoryRecord{
		EntitlementID: "ent-1", ActionType: model.ActionShared,
		ActorAccountID: "alice", CounterpartyAccountID: "bob",
		CreatedAt: base.Add(time.Minute),
	})
	appendRecord(t, repo, model.HistoryRecord{
		EntitlementID: "ent-2", ActionType: model.ActionTransferCompleted,
		ActorAccountID: "carol", CounterpartyAccountID: "alice",
		Amount: &amount, CreatedAt: base.Add(2 * time.Minute),
	})

	// alice appears as actor twice and counterparty once.
	recs, err := repo.ListByAccount(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records for alice, got %d", len(recs))
	}
	// Newest first.
	if recs[0].ActionType != model.ActionTransferCompleted {
		t.Errorf("expected newest record first, got %s", recs[0].ActionType)
	}
	if recs[0].Amount == nil || *recs[0].Amount != 300 {
		t.Errorf("expected amount 300 round-tripped, got %v", recs[0].Amount)
	}

	// bob only appears as counterparty.
	recs, err = repo.ListByAccount(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(recs) != 1 || recs[0].ActionType != model.ActionShared {
		t.Errorf("expected bob's single shared record, got %v", recs)
	}

	// Limit is honored.
	recs, err = repo.ListByAccount(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected limit of 2, got %d", len(recs))
	}
}

func TestHistoryListByEntitlement(t *testing.T) {
	t.Parallel()
	repo := newTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	appendRecord(t, repo, model.HistoryRecord{
		EntitlementID: "ent-1", ActionType: model.ActionPurchase,
		ActorAccountID: "alice", CreatedAt: base,
	})
	appendRecord(t, repo, model.HistoryRecord{
		EntitlementID: "ent-1", ActionType: model.ActionSuspended,
		ActorAccountID: "alice", CreatedAt: base.Add(time.Hour),
	})
	appendRecord(t, repo, model.HistoryRecord{
		EntitlementID: "ent-9", ActionType: model.ActionPurchase,
		ActorAccountID: "bob", CreatedAt: base,
	})

	recs, err := repo.ListByEntitlement(ctx, "ent-1", 10)
	if err != nil {
		t.Fatalf("ListByEntitlement failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records for ent-1, got %d", len(recs))
	}
	if recs[0].ActionType != model.ActionSuspended {
		t.Errorf("expected newest first, got %s", recs[0].ActionType)
	}
}

func TestHistoryPurge(t *testing.T) {
	t.Parallel()
	repo := newTestHistory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	appendRecord(t, repo, model.HistoryRecord{
		ActionType: model.ActionPurchase, ActorAccountID: "alice",
		CreatedAt: now.AddDate(-2, 0, 0),
	})
	appendRecord(t, repo, model.HistoryRecord{
		ActionType: model.ActionMaintenancePaid, ActorAccountID: "alice",
		CreatedAt: now,
	})

	purged, err := repo.PurgeOlderThan(ctx, now.AddDate(-1, 0, 0))
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged record, got %d", purged)
	}

	recs, err := repo.ListByAccount(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(recs) != 1 || recs[0].ActionType != model.ActionMaintenancePaid {
		t.Errorf("expected only the recent record to survive, got %v", recs)
	}
}
