package rolesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Discord REST API endpoint.
const DefaultBaseURL = "https://discord.com/api/v10"

// DiscordAdapter implements Adapter against the Discord REST API for a
// single guild.
type DiscordAdapter struct {
	baseURL string
	token   string
	guildID string
	client  *http.Client
}

// DiscordConfig holds the settings for the Discord adapter.
type DiscordConfig struct {
	BaseURL string
	Token   string
	GuildID string
}

// NewDiscordAdapter creates a Discord role-sync adapter.
func NewDiscordAdapter(cfg DiscordConfig) *DiscordAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &DiscordAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		guildID: cfg.GuildID,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *DiscordAdapter) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("discord API %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	return data, nil
}

// parseColor converts a "#RRGGBB" hex string to Discord's integer color.
// Invalid or empty colors fall back to 0 (no color).
func parseColor(color string) int64 {
	c := strings.TrimPrefix(strings.TrimSpace(color), "#")
	if c == "" {
		return 0
	}
	v, err := strconv.ParseInt(c, 16, 64)
	if err != nil {
		return 0
	}
	return v
}

// Materialize creates the guild role and returns its id.
func (a *DiscordAdapter) Materialize(ctx context.Context, label, color string) (string, error) {
	payload := map[string]interface{}{
		"name":  label,
		"color": parseColor(color),
	}
	data, err := a.do(ctx, http.MethodPost, fmt.Sprintf("/guilds/%s/roles", a.guildID), payload)
	if err != nil {
		return "", err
	}

	var role struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &role); err != nil {
		return "", fmt.Errorf("failed to parse role response: %w", err)
	}
	log.Printf("[DiscordAdapter] Materialized role %q as %s", label, role.ID)
	return role.ID, nil
}

// Assignments lists guild members holding the role, paging through the
// member list.
func (a *DiscordAdapter) Assignments(ctx context.Context, roleRef string) ([]string, error) {
	holders := []string{}
	after := ""
	for {
		path := fmt.Sprintf("/guilds/%s/members?limit=1000", a.guildID)
		if after != "" {
			path += "&after=" + after
		}
		data, err := a.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var members []struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
			Roles []string `json:"roles"`
		}
		if err := json.Unmarshal(data, &members); err != nil {
			return nil, fmt.Errorf("failed to parse members response: %w", err)
		}
		if len(members) == 0 {
			break
		}

		for _, m := range members {
			for _, role := range m.Roles {
				if role == roleRef {
					holders = append(holders, m.User.ID)
					break
				}
			}
		}
		after = members[len(members)-1].User.ID
		if len(members) < 1000 {
			break
		}
	}
	return holders, nil
}

// Grant assigns the role to a guild member.
func (a *DiscordAdapter) Grant(ctx context.Context, roleRef, userID string) error {
	_, err := a.do(ctx, http.MethodPut,
		fmt.Sprintf("/guilds/%s/members/%s/roles/%s", a.guildID, userID, roleRef), nil)
	return err
}

// Revoke removes the role from a guild member.
func (a *DiscordAdapter) Revoke(ctx context.Context, roleRef, userID string) error {
	_, err := a.do(ctx, http.MethodDelete,
		fmt.Sprintf("/guilds/%s/members/%s/roles/%s", a.guildID, userID, roleRef), nil)
	return err
}

// DeleteRole removes the guild role object.
func (a *DiscordAdapter) DeleteRole(ctx context.Context, roleRef string) error {
	_, err := a.do(ctx, http.MethodDelete,
		fmt.Sprintf("/guilds/%s/roles/%s", a.guildID, roleRef), nil)
	return err
}

// Ping verifies the token and guild are reachable.
func (a *DiscordAdapter) Ping(ctx context.Context) error {
	_, err := a.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s", a.guildID), nil)
	return err
}

// Ensure DiscordAdapter implements Adapter
var _ Adapter = (*DiscordAdapter)(nil)
