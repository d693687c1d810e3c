package twitchapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/BanditHelps/StreamChatBox/badges"
)

// BadgeCatalog fetches chat badge catalogs with caller-supplied credentials.
type BadgeCatalog struct {
	Helix *HelixClient
}

type badgeResponse struct {
	Data []badges.Set `json:"data"`
}

// ChannelBadges returns the broadcaster's custom badge sets.
func (b BadgeCatalog) ChannelBadges(ctx context.Context, creds badges.Credentials) ([]badges.Set, error) {
	var body badgeResponse
	q := url.Values{"broadcaster_id": {creds.BroadcasterID}}
	if err := b.Helix.do(ctx, "channel badges", http.MethodGet, "/chat/badges", q, nil, &body, &auth{clientID: creds.ClientID, token: creds.AccessToken}); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GlobalBadges returns the platform-wide badge sets.
func (b BadgeCatalog) GlobalBadges(ctx context.Context, creds badges.Credentials) ([]badges.Set, error) {
	var body badgeResponse
	if err := b.Helix.do(ctx, "global badges", http.MethodGet, "/chat/badges/global", nil, nil, &body, &auth{clientID: creds.ClientID, token: creds.AccessToken}); err != nil {
		return nil, err
	}
	return body.Data, nil
}
