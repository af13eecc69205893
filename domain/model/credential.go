package model

import (
	"sort"
	"strings"
	"time"
)

// Environment tells whether a credential talks to the real platform or is a
// local stand-in used for demos and tests.
type Environment string

const (
	EnvironmentLive      Environment = "live"
	EnvironmentSimulated Environment = "simulated"
)

// Well known metadata keys.
const (
	MetaChannelID = "channel_id"
	MetaPageID    = "page_id"
	MetaPageName  = "page_name"
	MetaIGUserID  = "ig_user_id"
	MetaTokenType = "token_type"
)

// Credential stores platform OAuth credentials per user. At most one active
// credential exists per (UserID, Platform).
type Credential struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Platform       Platform          `json:"platform"`
	PlatformUserID string            `json:"platform_user_id"`
	DisplayName    string            `json:"display_name"`
	AccessToken    string            `json:"-"`
	RefreshToken   string            `json:"-"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	Scope          []string          `json:"scope"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IsActive       bool              `json:"is_active"`
	Environment    Environment       `json:"environment"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	if c.Scope != nil {
		out.Scope = append([]string(nil), c.Scope...)
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Meta returns a metadata value or "".
func (c *Credential) Meta(key string) string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// HasScope reports whether the credential was granted the given scope.
func (c *Credential) HasScope(scope string) bool {
	for _, s := range c.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// IsSimulated reports whether the credential belongs to the simulated environment.
func (c *Credential) IsSimulated() bool {
	return c != nil && c.Environment == EnvironmentSimulated
}

// MaskedAccessToken is safe to log.
func (c *Credential) MaskedAccessToken() string {
	return MaskSecret(c.AccessToken)
}

// MaskSecret reveals at most a tenth of the secret, capped at 4 leading
// characters. Short secrets are fully hidden.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	keep := min(len(s)/10, 4)
	return s[:keep] + "****"
}

// JoinScope serializes scopes for storage.
func JoinScope(scope []string) string {
	cp := append([]string(nil), scope...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

// SplitScope parses scopes separated by commas or spaces.
func SplitScope(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(fields))
	seen := map[string]struct{}{}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// CredentialSummary is what callers see when listing connections.
type CredentialSummary struct {
	Platform       Platform    `json:"platform"`
	PlatformUserID string      `json:"platform_user_id"`
	DisplayName    string      `json:"display_name"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	Scope          []string    `json:"scope"`
	Environment    Environment `json:"environment"`
	CanRefresh     bool        `json:"can_refresh"`
	ConnectedAt    time.Time   `json:"connected_at"`
}

// Summary strips secrets from the credential.
func (c *Credential) Summary() CredentialSummary {
	return CredentialSummary{
		Platform:       c.Platform,
		PlatformUserID: c.PlatformUserID,
		DisplayName:    c.DisplayName,
		ExpiresAt:      c.ExpiresAt,
		Scope:          c.Scope,
		Environment:    c.Environment,
		CanRefresh:     c.RefreshToken != "",
		ConnectedAt:    c.CreatedAt,
	}
}
