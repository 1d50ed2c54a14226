package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"roleshop-api/internal/model"
	"roleshop-api/internal/repository"
	"roleshop-api/internal/rolesync"
	"roleshop-api/internal/service"
	"roleshop-api/pkg/apierror"
	"roleshop-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	shopService   *service.ShopService
	configService *service.ConfigService
	scheduler     *service.MaintenanceScheduler
	shopRepo      repository.ShopRepository
	members       repository.MemberRepository
	syncAdapter   rolesync.Adapter
	dbType        string
	startTime     time.Time
}

// NewAdminHandler creates a new admin handler. members and syncAdapter
// may be nil when those integrations are not configured.
func NewAdminHandler(
	shopService *service.ShopService,
	configService *service.ConfigService,
	scheduler *service.MaintenanceScheduler,
	shopRepo repository.ShopRepository,
	members repository.MemberRepository,
	syncAdapter rolesync.Adapter,
	dbType string,
) *AdminHandler {
	return &AdminHandler{
		shopService:   shopService,
		configService: configService,
		scheduler:     scheduler,
		shopRepo:      shopRepo,
		members:       members,
		syncAdapter:   syncAdapter,
		dbType:        dbType,
		startTime:     time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if shopStats, err := h.shopService.Stats(ctx); err == nil {
		stats["shop"] = shopStats
	} else {
		stats["shop"] = map[string]interface{}{"error": err.Error()}
	}

	if h.scheduler != nil {
		lastTick, tickErr := h.scheduler.LastTick()
		sched := map[string]interface{}{
			"last_sweep": lastTick.Format(time.RFC3339),
		}
		if lastTick.IsZero() {
			sched["last_sweep"] = "never"
		}
		if tickErr != nil {
			sched["last_sweep_error"] = tickErr.Error()
		}
		stats["scheduler"] = sched
	}

	response.OK(w, stats)
}

// GetConfig handles GET /api/v1/admin/config
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configService.Get(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, cfg)
}

// UpdateConfig handles PUT /api/v1/admin/config
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.ShopConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	if err := h.configService.Update(r.Context(), &cfg); err != nil {
		response.Error(w, err)
		return
	}

	updated, err := h.configService.Get(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, updated)
}

// ForceSync handles POST /api/v1/admin/sync - runs a full scheduler
// sweep immediately (suspensions, auction settlement, reconciliation).
func (h *AdminHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		response.Error(w, apierror.ServiceUnavailable("scheduler is not running"))
		return
	}

	start := time.Now()
	err := h.scheduler.RunNow()

	result := map[string]interface{}{
		"completed_at": time.Now().UTC().Format(time.RFC3339),
		"duration_ms":  time.Since(start).Milliseconds(),
	}
	if err != nil {
		result["status"] = "completed_with_errors"
		result["error"] = err.Error()
	} else {
		result["status"] = "ok"
	}
	response.OK(w, result)
}

type creditRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// Credit handles POST /api/v1/admin/credit - adds currency to an account.
func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		response.Error(w, apierror.BadRequest("account_id and amount are required"))
		return
	}

	balance, err := h.shopService.Credit(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"account_id": req.AccountID,
		"credited":   req.Amount,
		"balance":    balance,
	})
}

// Balance handles GET /api/v1/admin/balance/{account_id}
func (h *AdminHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	balance, err := h.shopService.Balance(r.Context(), accountID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"account_id": accountID,
		"balance":    balance,
	})
}

// HealthDetailed handles GET /api/v1/admin/health - pings every wired
// dependency and reports per-component status.
func (h *AdminHandler) HealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	components := make(map[string]string)
	healthy := true

	if err := h.shopRepo.Ping(ctx); err != nil {
		components["shop_db"] = "error: " + err.Error()
		healthy = false
	} else {
		components["shop_db"] = "ok"
	}

	if h.members != nil {
		if err := h.members.Ping(ctx); err != nil {
			components["member_db"] = "error: " + err.Error()
			healthy = false
		} else {
			components["member_db"] = "ok"
		}
	} else {
		components["member_db"] = "disabled"
	}

	if h.syncAdapter != nil {
		if err := h.syncAdapter.Ping(ctx); err != nil {
			components["role_platform"] = "error: " + err.Error()
			healthy = false
		} else {
			components["role_platform"] = "ok"
		}
	} else {
		components["role_platform"] = "disabled"
	}

	if h.scheduler != nil {
		lastTick, tickErr := h.scheduler.LastTick()
		switch {
		case tickErr != nil:
			components["scheduler"] = "error: " + tickErr.Error()
			healthy = false
		case lastTick.IsZero():
			components["scheduler"] = "pending"
		default:
			components["scheduler"] = "ok"
		}
	} else {
		components["scheduler"] = "disabled"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	response.JSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
