package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newAuthedHandler(cfg AuthConfig) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return NewAuthMiddleware(cfg)(ok)
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()
	cfg := AuthConfig{
		APIKeys:  []string{"key-one", "key-two"},
		AdminKey: "admin-secret",
	}
	h := newAuthedHandler(cfg)

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "no credentials rejected",
			path:       "/api/v1/shop/roles",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong key rejected",
			path:       "/api/v1/shop/roles",
			headers:    map[string]string{"X-API-Key": "wrong"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid api key accepted",
			path:       "/api/v1/shop/roles",
			headers:    map[string]string{"X-API-Key": "key-two"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "bearer token accepted",
			path:       "/api/v1/shop/roles",
			headers:    map[string]string{"Authorization": "Bearer key-one"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "health stays open",
			path:       "/api/v1/health",
			wantStatus: http.StatusOK,
		},
		{
			name:       "ready stays open",
			path:       "/api/v1/ready",
			wantStatus: http.StatusOK,
		},
		{
			name:       "admin without admin key rejected",
			path:       "/api/v1/admin/stats",
			headers:    map[string]string{"X-API-Key": "key-one"},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "admin with both keys accepted",
			path: "/api/v1/admin/stats",
			headers: map[string]string{
				"X-API-Key":   "key-one",
				"X-Admin-Key": "admin-secret",
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "admin key alone is not enough",
			path: "/api/v1/admin/stats",
			headers: map[string]string{
				"X-Admin-Key": "admin-secret",
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s: expected status %d, got %d", tt.path, tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestAuthMiddlewareAdminDisabled(t *testing.T) {
	t.Parallel()
	h := newAuthedHandler(AuthConfig{APIKeys: []string{"key"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	req.Header.Set("X-API-Key", "key")
	req.Header.Set("X-Admin-Key", "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 when no admin key configured, got %d", rec.Code)
	}
}
