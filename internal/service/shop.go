package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"roleshop-api/internal/event"
	"roleshop-api/internal/model"
	"roleshop-api/internal/repository"
	"roleshop-api/internal/rolesync"
	"roleshop-api/pkg/apierror"
	"roleshop-api/pkg/uid"
)

var colorPattern = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// ShopService handles purchases, maintenance, slot sales, and the ledger.
// The repository is the system of record; history, role sync, and member
// resolution are best-effort side channels and may be nil.
type ShopService struct {
	repo      repository.ShopRepository
	history   repository.HistoryRepository
	members   repository.MemberRepository
	sync      rolesync.Adapter
	publisher event.Publisher
	config    *ConfigService
}

// NewShopService creates a shop service.
// Returns nil if repo or config is nil (required dependencies).
func NewShopService(
	repo repository.ShopRepository,
	history repository.HistoryRepository,
	members repository.MemberRepository,
	sync rolesync.Adapter,
	publisher event.Publisher,
	config *ConfigService,
) *ShopService {
	if repo == nil || config == nil {
		return nil
	}
	return &ShopService{
		repo:      repo,
		history:   history,
		members:   members,
		sync:      sync,
		publisher: publisher,
		config:    config,
	}
}

func (s *ShopService) publish(ev *event.RoleEvent) {
	if s.publisher == nil {
		return
	}
	ev.Timestamp = time.Now().Unix()
	if err := s.publisher.PublishRoleEvent(ev); err != nil {
		log.Printf("[ShopService] Failed to publish %s event: %v", ev.EventType, err)
	}
}

// record appends a history entry. History is best-effort: a failed append
// is logged and never rolls back the operation it describes.
func (s *ShopService) record(ctx context.Context, rec *model.HistoryRecord) {
	if s.history == nil {
		return
	}
	rec.ID = uid.New()
	rec.CreatedAt = time.Now().UTC()
	if err := s.history.Append(ctx, rec); err != nil {
		log.Printf("[ShopService] Failed to append history (%s on %s): %v",
			rec.ActionType, rec.EntitlementID, err)
	}
}

func amountPtr(v int64) *int64 { return &v }

// externalUser resolves an account to its external chat user id. Returns
// empty string when no member directory is wired or the account is unknown.
func (s *ShopService) externalUser(ctx context.Context, accountID string) string {
	if s.members == nil {
		return ""
	}
	m, err := s.members.Resolve(ctx, accountID)
	if err != nil || m == nil || !m.IsActive {
		return ""
	}
	return m.ExternalUserID
}

// Purchase buys a new custom role for the account. Price and label
// uniqueness are enforced atomically against the ledger. No external
// role is created here; the reconciliation sweep materializes it.
func (s *ShopService) Purchase(ctx context.Context, accountID, label, color string) (*model.Entitlement, error) {
	label = strings.TrimSpace(label)
	if len(label) < 2 || len(label) > 100 {
		return nil, apierror.BadRequest("Role name must be between 2 and 100 characters")
	}
	color = strings.TrimSpace(color)
	if color != "" && !colorPattern.MatchString(color) {
		return nil, apierror.BadRequest("Color must be a 6-digit hex value")
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.IsEnabled {
		return nil, apierror.Forbidden("The role shop is currently disabled")
	}

	ent, err := s.repo.PurchaseEntitlement(ctx, repository.PurchaseParams{
		ID:              uid.New(),
		AccountID:       accountID,
		Kind:            model.KindCustomRole,
		Label:           label,
		Color:           color,
		Price:           cfg.Price,
		MaintenanceCost: cfg.MaintenanceCost,
		IntervalDays:    cfg.MaintenanceIntervalDays,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.record(ctx, &model.HistoryRecord{
		EntitlementID:  ent.ID,
		ActionType:     model.ActionPurchase,
		ActorAccountID: accountID,
		Amount:         amountPtr(cfg.Price),
		Details:        fmt.Sprintf("Purchased role %q", label),
	})

	log.Printf("[ShopService] Account %s purchased role %q (%s) for %d", accountID, label, ent.ID, cfg.Price)
	return ent, nil
}

// PayMaintenance charges the upkeep fee and pushes the due date forward.
// Paying on a SUSPENDED role reactivates it.
func (s *ShopService) PayMaintenance(ctx context.Context, accountID, entitlementID string) (*model.Entitlement, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}

	prev, err := s.repo.GetEntitlement(ctx, entitlementID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	wasSuspended := prev.Status == model.StatusSuspended

	ent, err := s.repo.PayMaintenance(ctx, accountID, entitlementID, cfg.MaintenanceCost, cfg.MaintenanceIntervalDays)
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.record(ctx, &model.HistoryRecord{
		EntitlementID:  ent.ID,
		ActionType:     model.ActionMaintenancePaid,
		ActorAccountID: accountID,
		Amount:         amountPtr(cfg.MaintenanceCost),
	})
	if wasSuspended {
		s.record(ctx, &model.HistoryRecord{
			EntitlementID:  ent.ID,
			ActionType:     model.ActionReactivated,
			ActorAccountID: accountID,
			Details:        "Reactivated by maintenance payment",
		})
		// Reassignment of the external role is left to the next
		// reconciliation pass; only the owner is restored eagerly.
		if s.sync != nil && ent.ExternalRoleRef != "" {
			if userID := s.externalUser(ctx, accountID); userID != "" {
				if err := s.sync.Grant(ctx, ent.ExternalRoleRef, userID); err != nil {
					log.Printf("[ShopService] Failed to restore role %s: %v", ent.ExternalRoleRef, err)
				}
			}
		}
	}
	return ent, nil
}

// SellSlot liquidates a role back to the shop for a partial refund.
func (s *ShopService) SellSlot(ctx context.Context, accountID, entitlementID string) (*model.Entitlement, int64, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, 0, err
	}

	ent, refund, err := s.repo.SellSlot(ctx, accountID, entitlementID, cfg.SlotRefundRate)
	if err != nil {
		return nil, 0, mapRepoError(err)
	}

	s.record(ctx, &model.HistoryRecord{
		EntitlementID:  ent.ID,
		ActionType:     model.ActionSlotSold,
		ActorAccountID: accountID,
		Amount:         amountPtr(refund),
		Details:        fmt.Sprintf("Sold role %q back to the shop", ent.Label),
	})

	// Best-effort delete; the ref stays set on failure so the
	// reconciliation sweep retries it.
	if s.sync != nil && ent.ExternalRoleRef != "" {
		if err := s.sync.DeleteRole(ctx, ent.ExternalRoleRef); err != nil {
			log.Printf("[ShopService] Failed to delete external role %s: %v", ent.ExternalRoleRef, err)
		} else if err := s.repo.SetExternalRoleRef(ctx, ent.ID, ""); err != nil {
			log.Printf("[ShopService] Failed to clear role ref on %s: %v", ent.ID, err)
		}
	}
	s.publish(&event.RoleEvent{
		EventType:     event.TypeRoleSold,
		EntitlementID: ent.ID,
		Label:         ent.Label,
		AccountID:     accountID,
		Amount:        refund,
	})
	log.Printf("[ShopService] Account %s sold role %q for %d", accountID, ent.Label, refund)
	return ent, refund, nil
}

// Get returns a single entitlement by id.
func (s *ShopService) Get(ctx context.Context, entitlementID string) (*model.Entitlement, error) {
	ent, err := s.repo.GetEntitlement(ctx, entitlementID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return ent, nil
}

// ListOwned returns every non-terminal entitlement owned by the account.
func (s *ShopService) ListOwned(ctx context.Context, accountID string) ([]model.Entitlement, error) {
	return s.repo.ListByOwner(ctx, accountID)
}

// Balance returns the account's ledger balance.
func (s *ShopService) Balance(ctx context.Context, accountID string) (int64, error) {
	return s.repo.Balance(ctx, accountID)
}

// Credit adds currency to an account. Admin surface only.
func (s *ShopService) Credit(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apierror.BadRequest("Credit amount must be positive")
	}
	balance, err := s.repo.Credit(ctx, accountID, amount)
	if err != nil {
		return 0, err
	}
	log.Printf("[ShopService] Credited %d to account %s (balance now %d)", amount, accountID, balance)
	return balance, nil
}

// History returns the audit trail for an account, newest first.
func (s *ShopService) History(ctx context.Context, accountID string, limit int) ([]model.HistoryRecord, error) {
	if s.history == nil {
		return nil, apierror.ServiceUnavailable("History storage is not configured")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.history.ListByAccount(ctx, accountID, limit)
}

// Stats returns aggregate shop statistics for the admin surface.
func (s *ShopService) Stats(ctx context.Context) (map[string]interface{}, error) {
	return s.repo.GetStats(ctx)
}
