package youtube

import (
	"context"
	"fmt"

	"social-publisher/domain/model"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ChannelLookup resolves the channel behind an access token.
type ChannelLookup struct {
	endpoint string
	opts     []option.ClientOption
}

// NewChannelLookup uses the public API unless endpoint is set.
func NewChannelLookup(endpoint string, opts ...option.ClientOption) *ChannelLookup {
	return &ChannelLookup{endpoint: endpoint, opts: opts}
}

func (l *ChannelLookup) Resolve(ctx context.Context, accessToken string) (*model.Profile, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, l.opts...)
	if l.endpoint != "" {
		opts = append(opts, option.WithEndpoint(l.endpoint))
	}
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	response, err := service.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get my channel: %w", err)
	}
	if len(response.Items) == 0 {
		return nil, fmt.Errorf("no channel found for authenticated user")
	}

	channel := response.Items[0]
	profile := &model.Profile{
		PlatformUserID: channel.Id,
		AccessToken:    accessToken,
		Metadata:       map[string]string{model.MetaChannelID: channel.Id},
	}
	if channel.Snippet != nil {
		profile.DisplayName = channel.Snippet.Title
	}
	return profile, nil
}
