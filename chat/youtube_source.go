package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BanditHelps/StreamChatBox/youtubeapi"
)

type liveChatAPI interface {
	FindLiveVideo(ctx context.Context, channelID string) (string, error)
	ActiveLiveChatID(ctx context.Context, videoID string) (string, error)
	ListMessages(ctx context.Context, chatID, pageToken string) (*youtubeapi.Page, error)
	InsertMessage(ctx context.Context, chatID, text string) (string, error)
}

// textMessageType is the only live chat item type turned into chat events.
const textMessageType = "textMessageEvent"

var errNoSession = errors.New("youtube live chat session not bootstrapped")

// YouTubeSource pages a channel's live chat.
type YouTubeSource struct {
	api       liveChatAPI
	channelID string

	mu     sync.RWMutex
	chatID string
}

// NewYouTubeSource returns a source for the live broadcast of channelID.
func NewYouTubeSource(api *youtubeapi.LiveChat, channelID string) *YouTubeSource {
	return &YouTubeSource{api: api, channelID: channelID}
}

// Backend returns YouTube.
func (s *YouTubeSource) Backend() Backend { return YouTube }

// Bootstrap finds the live broadcast and its chat id.
func (s *YouTubeSource) Bootstrap(ctx context.Context) error {
	videoID, err := s.api.FindLiveVideo(ctx, s.channelID)
	if err != nil {
		return &BootstrapError{Backend: YouTube, Err: err}
	}
	chatID, err := s.api.ActiveLiveChatID(ctx, videoID)
	if err != nil {
		return &BootstrapError{Backend: YouTube, Err: err}
	}
	s.mu.Lock()
	s.chatID = chatID
	s.mu.Unlock()
	slog.Info("youtube live chat found", slog.String("video_id", videoID), slog.String("chat_id", chatID))
	return nil
}

// ChatID returns the bootstrapped chat id.
func (s *YouTubeSource) ChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatID
}

// Poll fetches the page at cur. Only text messages become events.
func (s *YouTubeSource) Poll(ctx context.Context, cur Cursor) (Batch, error) {
	chatID := s.ChatID()
	if chatID == "" {
		return Batch{}, errNoSession
	}
	page, err := s.api.ListMessages(ctx, chatID, cur.Token)
	if err != nil {
		return Batch{}, err
	}
	batch := Batch{
		Next: Cursor{Token: page.NextPageToken, Interval: page.PollingInterval},
		More: page.NextPageToken != "" && page.OfflineAt == "",
	}
	for _, m := range page.Messages {
		if m.Type != textMessageType {
			continue
		}
		batch.Events = append(batch.Events, RawEvent{
			Kind:      KindChat,
			Author:    m.Author,
			Text:      m.Text,
			Timestamp: m.PublishedAt,
		})
	}
	if page.OfflineAt != "" {
		slog.Info("youtube live chat went offline", slog.String("offline_at", page.OfflineAt))
	}
	return batch, nil
}

// Send posts text to the live chat.
func (s *YouTubeSource) Send(ctx context.Context, text string) error {
	chatID := s.ChatID()
	if chatID == "" {
		return errNoSession
	}
	_, err := s.api.InsertMessage(ctx, chatID, text)
	return err
}
