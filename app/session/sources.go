package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lysyi3m/clubfeed/app/database"
	"github.com/lysyi3m/clubfeed/app/feed"
	"github.com/lysyi3m/clubfeed/app/remote"
	"github.com/lysyi3m/clubfeed/app/stream"
)

var _ Provider = (*Sources)(nil)

// Sources builds the page fetcher for a stream definition and provides the
// mutation calls shared by every session.
type Sources struct {
	client     *remote.Client
	saved      *database.SavedRepository
	httpClient *http.Client
	parser     *feed.Parser
	userAgent  string
}

func NewSources(client *remote.Client, saved *database.SavedRepository, httpClient *http.Client, parser *feed.Parser, userAgent string) *Sources {
	return &Sources{
		client:     client,
		saved:      saved,
		httpClient: httpClient,
		parser:     parser,
		userAgent:  userAgent,
	}
}

func (s *Sources) Fetcher(config *feed.Config) (stream.PageFetcher, error) {
	switch config.Source {
	case feed.SourceREST:
		return s.client.PageSource(config.Path, config.ListField, config.Settings.PageSize), nil
	case feed.SourceRSS:
		return feed.NewRSSSource(config, s.httpClient, s.parser, s.userAgent), nil
	case feed.SourceSaved:
		return s.saved.Stream(config.Settings.PageSize, config.Settings.FirstPage), nil
	default:
		return nil, fmt.Errorf("unsupported stream source %q", config.Source)
	}
}

func (s *Sources) Seed() stream.OverlaySource {
	return s.saved
}

func (s *Sources) Remote(config *feed.Config) stream.Remote {
	return remoteActions{client: s.client, saved: s.saved, config: config}
}

// remoteActions routes likes and remove actions to the endpoints of one
// stream definition and saves to the local store.
type remoteActions struct {
	client *remote.Client
	saved  database.SavedItemRepository
	config *feed.Config
}

func (r remoteActions) Like(ctx context.Context, id stream.ItemID, currentlyLiked bool) (int, error) {
	return r.client.Like(ctx, id, currentlyLiked, r.config.Actions.LikeType)
}

func (r remoteActions) Save(ctx context.Context, item stream.Item, saved bool) (bool, error) {
	return r.saved.Save(ctx, item, saved)
}

func (r remoteActions) Remove(ctx context.Context, action string, id stream.ItemID) (bool, error) {
	path, ok := r.config.ActionPath(action)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return r.client.Remove(ctx, path, id)
}
