// Package youtubeapi wraps the YouTube Data API for live chat: locating a
// channel's live broadcast, paging its chat and posting messages. Reads use an
// API key; posting uses an OAuth2 refresh token.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// DefaultScope allows reading and posting live chat messages.
const DefaultScope = "https://www.googleapis.com/auth/youtube.force-ssl"

var (
	// ErrNotLive means the channel has no live broadcast right now.
	ErrNotLive = errors.New("youtube: channel is not live")
	// ErrNoLiveChat means the broadcast has no active chat.
	ErrNoLiveChat = errors.New("youtube: no active live chat")
	// ErrReadOnly means no OAuth credentials were configured for posting.
	ErrReadOnly = errors.New("youtube: posting requires oauth credentials")
)

// Options configures New. Endpoint and HTTPClient exist for tests.
type Options struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Scopes       string
	Endpoint     string
	HTTPClient   *http.Client
}

// CanPost reports whether OAuth credentials are present.
func (o Options) CanPost() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.RefreshToken != ""
}

func (o Options) scopes() []string {
	// allow comma or space separated
	if fields := strings.Fields(strings.ReplaceAll(o.Scopes, ",", " ")); len(fields) > 0 {
		return fields
	}
	return []string{DefaultScope}
}

// LiveChat is a thin client over the liveChatMessages, search and videos
// resources.
type LiveChat struct {
	read  *yt.Service
	write *yt.Service
}

// New builds the read service and, when OAuth credentials are present, the
// write service.
func New(ctx context.Context, opts Options) (*LiveChat, error) {
	var common []option.ClientOption
	if opts.Endpoint != "" {
		common = append(common, option.WithEndpoint(opts.Endpoint))
	}
	if opts.HTTPClient != nil {
		common = append(common, option.WithHTTPClient(opts.HTTPClient))
	}

	lc := &LiveChat{}
	if opts.CanPost() {
		conf := &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       opts.scopes(),
		}
		ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: opts.RefreshToken})
		svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, common...)...)
		if err != nil {
			return nil, fmt.Errorf("youtube write service: %w", err)
		}
		lc.write = svc
	}
	switch {
	case opts.APIKey != "":
		svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(opts.APIKey)}, common...)...)
		if err != nil {
			return nil, fmt.Errorf("youtube read service: %w", err)
		}
		lc.read = svc
	case lc.write != nil:
		lc.read = lc.write
	default:
		return nil, errors.New("youtube: api key or oauth credentials required")
	}
	return lc, nil
}

// CanPost reports whether InsertMessage can succeed.
func (lc *LiveChat) CanPost() bool { return lc.write != nil }

// FindLiveVideo returns the id of the channel's current live broadcast.
func (lc *LiveChat) FindLiveVideo(ctx context.Context, channelID string) (string, error) {
	res, err := lc.read.Search.List([]string{"id"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube search live: %w", err)
	}
	for _, item := range res.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			return item.Id.VideoId, nil
		}
	}
	return "", ErrNotLive
}

// ActiveLiveChatID returns the chat id attached to a live video.
func (lc *LiveChat) ActiveLiveChatID(ctx context.Context, videoID string) (string, error) {
	res, err := lc.read.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube video details: %w", err)
	}
	if len(res.Items) == 0 || res.Items[0].LiveStreamingDetails == nil || res.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
		return "", ErrNoLiveChat
	}
	return res.Items[0].LiveStreamingDetails.ActiveLiveChatId, nil
}

// Message is a live chat message reduced to what the engine consumes.
type Message struct {
	ID          string
	Type        string
	Author      string
	Text        string
	PublishedAt time.Time
}

// Page is one liveChatMessages.list response.
type Page struct {
	Messages        []Message
	NextPageToken   string
	PollingInterval time.Duration
	OfflineAt       string
}

// ListMessages fetches the page after pageToken; an empty token starts at the
// most recent messages.
func (lc *LiveChat) ListMessages(ctx context.Context, chatID, pageToken string) (*Page, error) {
	call := lc.read.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("youtube list messages: %w", err)
	}
	page := &Page{
		NextPageToken:   res.NextPageToken,
		PollingInterval: time.Duration(res.PollingIntervalMillis) * time.Millisecond,
		OfflineAt:       res.OfflineAt,
	}
	for _, item := range res.Items {
		m := Message{ID: item.Id}
		if item.Snippet != nil {
			m.Type = item.Snippet.Type
			m.Text = item.Snippet.DisplayMessage
			if item.Snippet.TextMessageDetails != nil && item.Snippet.TextMessageDetails.MessageText != "" {
				m.Text = item.Snippet.TextMessageDetails.MessageText
			}
			if ts, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				m.PublishedAt = ts
			}
		}
		if item.AuthorDetails != nil {
			m.Author = item.AuthorDetails.DisplayName
		}
		page.Messages = append(page.Messages, m)
	}
	return page, nil
}

// InsertMessage posts text to the chat and returns the new message id.
func (lc *LiveChat) InsertMessage(ctx context.Context, chatID, text string) (string, error) {
	if lc.write == nil {
		return "", ErrReadOnly
	}
	msg := &yt.LiveChatMessage{
		Snippet: &yt.LiveChatMessageSnippet{
			LiveChatId: chatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &yt.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}
	res, err := lc.write.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube insert message: %w", err)
	}
	return res.Id, nil
}
