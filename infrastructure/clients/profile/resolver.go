package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/graph"
	"social-publisher/infrastructure/clients/youtube"
)

// Endpoints for platforms resolved through a plain "who am I" call.
var DefaultUserInfoURLs = map[model.Platform]string{
	model.PlatformTwitter:  "https://api.twitter.com/2/users/me",
	model.PlatformLinkedIn: "https://api.linkedin.com/v2/userinfo",
	model.PlatformTikTok:   "https://open.tiktokapis.com/v2/user/info/?fields=open_id,display_name",
}

// Resolver implements repository.IProfileResolver for every platform.
type Resolver struct {
	youtube  *youtube.ChannelLookup
	graph    *graph.Client
	http     *http.Client
	userInfo map[model.Platform]string
}

func NewResolver(yt *youtube.ChannelLookup, g *graph.Client, httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	urls := make(map[model.Platform]string, len(DefaultUserInfoURLs))
	for k, v := range DefaultUserInfoURLs {
		urls[k] = v
	}
	return &Resolver{youtube: yt, graph: g, http: httpClient, userInfo: urls}
}

// WithUserInfoURL overrides the lookup endpoint of a platform.
func (r *Resolver) WithUserInfoURL(p model.Platform, u string) *Resolver {
	r.userInfo[p] = u
	return r
}

func (r *Resolver) Resolve(ctx context.Context, p model.Platform, accessToken string) (*model.Profile, error) {
	switch p {
	case model.PlatformYouTube:
		return r.youtube.Resolve(ctx, accessToken)
	case model.PlatformFacebook, model.PlatformInstagram:
		return r.graph.ResolveProfile(ctx, p, accessToken)
	}
	u, ok := r.userInfo[p]
	if !ok {
		return nil, fmt.Errorf("no profile lookup for %s", p)
	}
	return r.userInfoProfile(ctx, p, u, accessToken)
}

// userInfoProfile understands the three response shapes in use:
// {"data":{"id","username"}}, {"sub","name"} and {"data":{"user":{"open_id","display_name"}}}.
func (r *Resolver) userInfoProfile(ctx context.Context, p model.Platform, u, accessToken string) (*model.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	res, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s profile lookup: %w", p, err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("%s profile lookup returned %d: %s", p, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Sub  string `json:"sub"`
		Name string `json:"name"`
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
			User     struct {
				OpenID      string `json:"open_id"`
				DisplayName string `json:"display_name"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%s profile lookup: %w", p, err)
	}
	prof := &model.Profile{AccessToken: accessToken, Metadata: map[string]string{}}
	switch {
	case payload.Sub != "":
		prof.PlatformUserID, prof.DisplayName = payload.Sub, payload.Name
	case payload.Data.ID != "":
		prof.PlatformUserID = payload.Data.ID
		prof.DisplayName = firstNonEmpty(payload.Data.Username, payload.Data.Name)
	case payload.Data.User.OpenID != "":
		prof.PlatformUserID, prof.DisplayName = payload.Data.User.OpenID, payload.Data.User.DisplayName
	default:
		return nil, fmt.Errorf("%s profile lookup: no account id in response", p)
	}
	return prof, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
