package graph

import (
	"context"
	"errors"
	"fmt"

	"social-publisher/domain/model"
)

type accountsParams struct {
	Fields string `url:"fields"`
	Limit  int    `url:"limit,omitempty"`
}

type page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
	Instagram   *struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"instagram_business_account"`
}

// ResolveProfile finds the page (Facebook) or business account (Instagram)
// that publishes will target.
func (c *Client) ResolveProfile(ctx context.Context, p model.Platform, accessToken string) (*model.Profile, error) {
	var out struct {
		Data []page `json:"data"`
	}
	params := accountsParams{Fields: "id,name,access_token,instagram_business_account{id,username}", Limit: 50}
	if err := c.Get(ctx, "/me/accounts", accessToken, params, &out); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	switch p {
	case model.PlatformFacebook:
		for _, pg := range out.Data {
			if pg.ID == "" {
				continue
			}
			token := pg.AccessToken
			if token == "" {
				token = accessToken
			}
			return &model.Profile{
				PlatformUserID: pg.ID,
				DisplayName:    pg.Name,
				AccessToken:    token,
				Metadata:       map[string]string{model.MetaPageID: pg.ID, model.MetaPageName: pg.Name},
			}, nil
		}
		return nil, errors.New("no facebook page available for this account")
	case model.PlatformInstagram:
		for _, pg := range out.Data {
			if pg.Instagram == nil || pg.Instagram.ID == "" {
				continue
			}
			name := pg.Instagram.Username
			if name == "" {
				name = pg.Name
			}
			return &model.Profile{
				PlatformUserID: pg.Instagram.ID,
				DisplayName:    name,
				AccessToken:    accessToken,
				Metadata:       map[string]string{model.MetaIGUserID: pg.Instagram.ID, model.MetaPageID: pg.ID},
			}, nil
		}
		return nil, errors.New("no instagram business account linked to a facebook page")
	}
	return nil, fmt.Errorf("graph profile lookup does not support %s", p)
}
