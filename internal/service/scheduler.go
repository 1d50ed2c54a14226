package service

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"roleshop-api/internal/event"
	"roleshop-api/internal/model"
	"roleshop-api/internal/repository"
	"roleshop-api/internal/rolesync"
)

// SchedulerConfig holds configuration for the maintenance scheduler.
type SchedulerConfig struct {
	// TickInterval is how often the sweep runs.
	// Default: 5 minutes
	TickInterval time.Duration

	// ReminderThresholds are the days-before-due marks at which a
	// reminder event fires, e.g. [3, 1]. Each threshold fires at most
	// once per maintenance cycle.
	ReminderThresholds []int

	// RetentionDays is how long history records are kept.
	// Default: 365 days. 0 disables the purge.
	RetentionDays int
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:       5 * time.Minute,
		ReminderThresholds: []int{3, 1},
		RetentionDays:      365,
	}
}

// MaintenanceScheduler drives everything time-based: suspending roles
// with lapsed maintenance, settling ended auctions, sending payment
// reminders, reconciling the external role platform against the
// database, and purging old history.
type MaintenanceScheduler struct {
	repo      repository.ShopRepository
	history   repository.HistoryRepository
	members   repository.MemberRepository
	sync      rolesync.Adapter
	publisher event.Publisher
	auctions  *AuctionService
	shop      *ShopService
	config    SchedulerConfig

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex

	lastTick    time.Time
	lastTickErr error
}

// NewMaintenanceScheduler creates a scheduler. history, members, sync,
// and publisher may be nil; the corresponding sweep steps become no-ops.
func NewMaintenanceScheduler(
	repo repository.ShopRepository,
	history repository.HistoryRepository,
	members repository.MemberRepository,
	sync rolesync.Adapter,
	publisher event.Publisher,
	auctions *AuctionService,
	shop *ShopService,
	config SchedulerConfig,
) *MaintenanceScheduler {
	if config.TickInterval == 0 {
		config.TickInterval = 5 * time.Minute
	}
	if len(config.ReminderThresholds) == 0 {
		config.ReminderThresholds = []int{3, 1}
	}
	// Largest threshold first so the sweep settles on the tightest one.
	sort.Sort(sort.Reverse(sort.IntSlice(config.ReminderThresholds)))

	return &MaintenanceScheduler{
		repo:      repo,
		history:   history,
		members:   members,
		sync:      sync,
		publisher: publisher,
		auctions:  auctions,
		shop:      shop,
		config:    config,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *MaintenanceScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.TickInterval)
	s.mu.Unlock()

	log.Printf("[MaintenanceScheduler] Started - Interval: %v, Reminders at: %v days",
		s.config.TickInterval, s.config.ReminderThresholds)

	// Run an initial sweep shortly after startup so a restart does not
	// delay overdue suspensions by a full interval.
	go func() {
		time.Sleep(10 * time.Second)
		s.runSweep()
	}()

	go s.run()
}

func (s *MaintenanceScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runSweep()
		case <-s.stopCh:
			log.Printf("[MaintenanceScheduler] Stopped")
			return
		}
	}
}

// Stop stops the scheduler. Safe to call more than once.
func (s *MaintenanceScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers a sweep immediately, outside the ticker. Used by the
// admin sync endpoint.
func (s *MaintenanceScheduler) RunNow() error {
	s.runSweep()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTickErr
}

// LastTick reports when the last sweep finished and whether it failed.
func (s *MaintenanceScheduler) LastTick() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick, s.lastTickErr
}

// runSweep is one full pass. Steps are isolated: a failure in one is
// logged and recorded but never blocks the others.
func (s *MaintenanceScheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var firstErr error
	note := func(step string, err error) {
		if err != nil {
			log.Printf("[MaintenanceScheduler] %s failed: %v", step, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	note("Maintenance sweep", s.sweepMaintenance(ctx))
	note("Auction sweep", s.sweepAuctions(ctx))
	note("Reminder sweep", s.sweepReminders(ctx))
	note("Reconciliation", s.reconcile(ctx))
	note("History purge", s.purgeHistory(ctx))

	s.mu.Lock()
	s.lastTick = time.Now().UTC()
	s.lastTickErr = firstErr
	s.mu.Unlock()
}

// sweepMaintenance suspends every ACTIVE entitlement whose maintenance
// date has passed. Grants expire with the suspension; the external role
// object survives so reactivation is cheap.
func (s *MaintenanceScheduler) sweepMaintenance(ctx context.Context) error {
	due, err := s.repo.ListMaintenanceDue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for i := range due {
		ent := &due[i]
		res, err := s.repo.Suspend(ctx, ent.ID)
		if err != nil {
			log.Printf("[MaintenanceScheduler] Failed to suspend %s: %v", ent.ID, err)
			continue
		}
		if !res.Changed {
			continue
		}

		if s.shop != nil {
			s.shop.record(ctx, &model.HistoryRecord{
				EntitlementID:  ent.ID,
				ActionType:     model.ActionMaintenanceMissed,
				ActorAccountID: ent.OwnerAccountID,
			})
			s.shop.record(ctx, &model.HistoryRecord{
				EntitlementID:  ent.ID,
				ActionType:     model.ActionSuspended,
				ActorAccountID: ent.OwnerAccountID,
				Details:        "Maintenance payment lapsed",
			})
		}
		s.publishEvent(&event.RoleEvent{
			EventType:     event.TypeRoleSuspended,
			EntitlementID: ent.ID,
			Label:         ent.Label,
			AccountID:     ent.OwnerAccountID,
		})

		// Strip all assignments but keep the role object.
		if s.sync != nil && ent.ExternalRoleRef != "" {
			holders := append([]string{ent.OwnerAccountID}, res.ExpiredGrantees...)
			for _, accountID := range holders {
				if userID := s.resolveUser(ctx, accountID); userID != "" {
					if err := s.sync.Revoke(ctx, ent.ExternalRoleRef, userID); err != nil {
						log.Printf("[MaintenanceScheduler] Failed to revoke role %s from %s: %v",
							ent.ExternalRoleRef, accountID, err)
					}
				}
			}
		}
		log.Printf("[MaintenanceScheduler] Suspended %q (%s): maintenance lapsed", ent.Label, ent.ID)
	}
	return nil
}

// sweepAuctions settles every auction whose end time has passed.
func (s *MaintenanceScheduler) sweepAuctions(ctx context.Context) error {
	if s.auctions == nil {
		return nil
	}
	ended, err := s.repo.ListExpiredAuctions(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for i := range ended {
		if _, err := s.auctions.Complete(ctx, ended[i].ID); err != nil {
			log.Printf("[MaintenanceScheduler] Failed to settle auction %s: %v", ended[i].ID, err)
		}
	}
	return nil
}

// sweepReminders publishes upcoming-maintenance reminders. Each
// configured threshold fires at most once per cycle; the persisted
// last-reminder mark is cleared when maintenance is paid.
func (s *MaintenanceScheduler) sweepReminders(ctx context.Context) error {
	if s.publisher == nil {
		return nil
	}
	active, err := s.repo.ListByStatus(ctx, model.StatusActive)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range active {
		ent := &active[i]
		if ent.NextMaintenanceDate == nil {
			continue
		}
		daysLeft := int(math.Ceil(ent.NextMaintenanceDate.Sub(now).Hours() / 24))
		if daysLeft <= 0 {
			continue
		}

		// Thresholds are sorted descending; the last match is the
		// tightest one that applies.
		threshold := 0
		for _, t := range s.config.ReminderThresholds {
			if daysLeft <= t {
				threshold = t
			}
		}
		if threshold == 0 {
			continue
		}
		if ent.LastReminderDays != nil && *ent.LastReminderDays <= threshold {
			continue
		}

		s.publishEvent(&event.RoleEvent{
			EventType:     event.TypeMaintenanceReminder,
			EntitlementID: ent.ID,
			Label:         ent.Label,
			AccountID:     ent.OwnerAccountID,
			Amount:        ent.MaintenanceCost,
			DaysLeft:      daysLeft,
		})
		if err := s.repo.SetLastReminder(ctx, ent.ID, threshold); err != nil {
			log.Printf("[MaintenanceScheduler] Failed to mark reminder for %s: %v", ent.ID, err)
		}
	}
	return nil
}

// reconcile converges the external role platform with the database:
// missing role objects are created, assignments are diffed against the
// owner plus active grantees, and role objects left behind by sold
// entitlements are deleted. SUSPENDED roles keep their object but hold
// no assignments. This sweep is the retry path for every external call
// that failed at operation time.
func (s *MaintenanceScheduler) reconcile(ctx context.Context) error {
	if s.sync == nil {
		return nil
	}

	var ents []model.Entitlement
	for _, status := range []string{model.StatusActive, model.StatusSuspended, model.StatusTransferring} {
		batch, err := s.repo.ListByStatus(ctx, status)
		if err != nil {
			return err
		}
		ents = append(ents, batch...)
	}

	for i := range ents {
		if err := s.reconcileOne(ctx, &ents[i]); err != nil {
			log.Printf("[MaintenanceScheduler] Failed to reconcile %s: %v", ents[i].ID, err)
		}
	}

	// A SOLD entitlement must not keep a role object alive. The ref is
	// cleared only after the delete succeeds so a platform outage gets
	// retried next tick.
	sold, err := s.repo.ListByStatus(ctx, model.StatusSold)
	if err != nil {
		return err
	}
	for i := range sold {
		ent := &sold[i]
		if ent.ExternalRoleRef == "" {
			continue
		}
		if err := s.sync.DeleteRole(ctx, ent.ExternalRoleRef); err != nil {
			log.Printf("[MaintenanceScheduler] Failed to delete role %s of sold entitlement %s: %v",
				ent.ExternalRoleRef, ent.ID, err)
			continue
		}
		if err := s.repo.SetExternalRoleRef(ctx, ent.ID, ""); err != nil {
			log.Printf("[MaintenanceScheduler] Failed to clear role ref on %s: %v", ent.ID, err)
		}
	}
	return nil
}

func (s *MaintenanceScheduler) reconcileOne(ctx context.Context, ent *model.Entitlement) error {
	if ent.ExternalRoleRef == "" {
		roleRef, err := s.sync.Materialize(ctx, ent.Label, ent.Color)
		if err != nil {
			return err
		}
		if err := s.repo.SetExternalRoleRef(ctx, ent.ID, roleRef); err != nil {
			return err
		}
		ent.ExternalRoleRef = roleRef
	}

	// Assignment diffing needs the member directory to map accounts to
	// external users.
	if s.members == nil {
		return nil
	}

	desired := make(map[string]bool)
	if ent.Status == model.StatusActive || ent.Status == model.StatusTransferring {
		if userID := s.resolveUser(ctx, ent.OwnerAccountID); userID != "" {
			desired[userID] = true
		}
		grants, err := s.repo.ActiveGrants(ctx, ent.ID)
		if err != nil {
			return err
		}
		for _, g := range grants {
			if userID := s.resolveUser(ctx, g.GranteeAccountID); userID != "" {
				desired[userID] = true
			}
		}
	}

	current, err := s.sync.Assignments(ctx, ent.ExternalRoleRef)
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(current))
	for _, userID := range current {
		have[userID] = true
		if !desired[userID] {
			if err := s.sync.Revoke(ctx, ent.ExternalRoleRef, userID); err != nil {
				log.Printf("[MaintenanceScheduler] Failed to revoke stray assignment of %s from %s: %v",
					ent.ExternalRoleRef, userID, err)
			}
		}
	}
	for userID := range desired {
		if !have[userID] {
			if err := s.sync.Grant(ctx, ent.ExternalRoleRef, userID); err != nil {
				log.Printf("[MaintenanceScheduler] Failed to restore assignment of %s to %s: %v",
					ent.ExternalRoleRef, userID, err)
			}
		}
	}
	return nil
}

// purgeHistory trims audit records past the retention horizon.
func (s *MaintenanceScheduler) purgeHistory(ctx context.Context) error {
	if s.history == nil || s.config.RetentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.RetentionDays)
	purged, err := s.history.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if purged > 0 {
		log.Printf("[MaintenanceScheduler] Purged %d history records older than %s",
			purged, cutoff.Format("2006-01-02"))
	}
	return nil
}

func (s *MaintenanceScheduler) resolveUser(ctx context.Context, accountID string) string {
	if s.members == nil {
		return ""
	}
	m, err := s.members.Resolve(ctx, accountID)
	if err != nil || m == nil {
		return ""
	}
	return m.ExternalUserID
}

func (s *MaintenanceScheduler) publishEvent(ev *event.RoleEvent) {
	if s.publisher == nil {
		return
	}
	ev.Timestamp = time.Now().Unix()
	if err := s.publisher.PublishRoleEvent(ev); err != nil {
		log.Printf("[MaintenanceScheduler] Failed to publish %s event: %v", ev.EventType, err)
	}
}
