package api

import (
	"context"

	"github.com/lysyi3m/clubfeed/app/feed"
	"github.com/lysyi3m/clubfeed/app/session"
	"github.com/lysyi3m/clubfeed/app/stream"
	"github.com/lysyi3m/clubfeed/app/tasks"
)

// SavedCounter reports how many items are stored locally as saved.
type SavedCounter interface {
	GetSavedCount(ctx context.Context) (int, error)
}

type Handler struct {
	manager     *session.Manager
	configCache *feed.ConfigCache
	saved       SavedCounter
	scheduler   tasks.TaskSchedulerInterface
	appVersion  string
}

type errorResponse struct {
	Kind    string `json:"kind,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type streamResponse struct {
	Stream string `json:"stream"`
	stream.Snapshot
	Error *errorResponse `json:"error,omitempty"`
}
