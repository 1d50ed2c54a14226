package rolesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *DiscordAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDiscordAdapter(DiscordConfig{
		BaseURL: srv.URL,
		Token:   "test-token",
		GuildID: "guild-1",
	})
}

func TestParseColor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"#ff0000", 0xff0000},
		{"00ff00", 0x00ff00},
		{"  #0000FF  ", 0x0000ff},
		{"not-a-color", 0},
	}
	for _, tt := range tests {
		if got := parseColor(tt.in); got != tt.want {
			t.Errorf("parseColor(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMaterialize(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/guilds/guild-1/roles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot test-token" {
			t.Errorf("unexpected auth header %q", got)
		}

		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		if payload["name"] != "Neon Knight" {
			t.Errorf("unexpected role name %v", payload["name"])
		}
		if payload["color"].(float64) != float64(0xff00aa) {
			t.Errorf("unexpected color %v", payload["color"])
		}

		json.NewEncoder(w).Encode(map[string]string{"id": "role-123"})
	})

	ref, err := adapter.Materialize(context.Background(), "Neon Knight", "#ff00aa")
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if ref != "role-123" {
		t.Errorf("expected role-123, got %s", ref)
	}
}

func TestMaterializeServerError(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Missing Permissions"}`, http.StatusForbidden)
	})

	if _, err := adapter.Materialize(context.Background(), "Denied", ""); err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
}

func TestGrantAndRevoke(t *testing.T) {
	t.Parallel()

	var methods []string
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/guilds/guild-1/members/user-9/roles/role-5" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	if err := adapter.Grant(ctx, "role-5", "user-9"); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := adapter.Revoke(ctx, "role-5", "user-9"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if len(methods) != 2 || methods[0] != http.MethodPut || methods[1] != http.MethodDelete {
		t.Errorf("expected PUT then DELETE, got %v", methods)
	}
}

func TestAssignmentsFiltersByRole(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"user": {"id": "1"}, "roles": ["role-a", "role-b"]},
			{"user": {"id": "2"}, "roles": ["role-b"]},
			{"user": {"id": "3"}, "roles": []}
		]`)
	})

	holders, err := adapter.Assignments(context.Background(), "role-a")
	if err != nil {
		t.Fatalf("Assignments failed: %v", err)
	}
	if len(holders) != 1 || holders[0] != "1" {
		t.Errorf("expected only member 1, got %v", holders)
	}
}

func TestAssignmentsPagination(t *testing.T) {
	t.Parallel()

	// First page is a full 1000 members, second page is the remainder.
	page := 0
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		page++
		switch page {
		case 1:
			if r.URL.Query().Get("after") != "" {
				t.Errorf("first page must not carry an after cursor")
			}
			members := make([]map[string]interface{}, 1000)
			for i := range members {
				members[i] = map[string]interface{}{
					"user":  map[string]string{"id": fmt.Sprintf("%d", i+1)},
					"roles": []string{"role-a"},
				}
			}
			json.NewEncoder(w).Encode(members)
		case 2:
			if r.URL.Query().Get("after") != "1000" {
				t.Errorf("expected after=1000, got %q", r.URL.Query().Get("after"))
			}
			fmt.Fprint(w, `[{"user": {"id": "1001"}, "roles": ["role-a"]}]`)
		default:
			t.Errorf("unexpected third page request")
			fmt.Fprint(w, `[]`)
		}
	})

	holders, err := adapter.Assignments(context.Background(), "role-a")
	if err != nil {
		t.Fatalf("Assignments failed: %v", err)
	}
	if len(holders) != 1001 {
		t.Errorf("expected 1001 holders across pages, got %d", len(holders))
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/guilds/guild-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"id": "guild-1"}`)
	})
	if err := adapter.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
