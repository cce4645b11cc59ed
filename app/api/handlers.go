package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/clubfeed/app/feed"
	"github.com/lysyi3m/clubfeed/app/session"
	"github.com/lysyi3m/clubfeed/app/stream"
	"github.com/lysyi3m/clubfeed/app/tasks"
)

// Loads and mutations are detached from the request so a disconnecting client
// neither puts the stream in error nor rolls back a change the backend may
// already have applied.
const (
	loadTimeout     = 2 * time.Minute
	mutationTimeout = time.Minute
)

func NewHandler(manager *session.Manager, configCache *feed.ConfigCache, saved SavedCounter,
	scheduler tasks.TaskSchedulerInterface, appVersion string) *Handler {
	return &Handler{
		manager:     manager,
		configCache: configCache,
		saved:       saved,
		scheduler:   scheduler,
		appVersion:  appVersion,
	}
}

func (h *Handler) version() string {
	return h.appVersion
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.appVersion,
	}

	if h.saved != nil {
		if count, err := h.saved.GetSavedCount(c.Request.Context()); err == nil {
			health["saved_items"] = count
		}
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()
	health["open_streams"] = h.manager.Count()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListKinds(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	kinds := make([]map[string]interface{}, 0, len(configs))
	for _, config := range configs {
		kinds = append(kinds, map[string]interface{}{
			"name":         config.Name,
			"source":       config.Source,
			"enabled":      config.Settings.Enabled,
			"page_size":    config.Settings.PageSize,
			"first_page":   config.Settings.FirstPage,
			"timeout":      (time.Duration(config.Settings.Timeout) * time.Second).String(),
			"retry_failed": config.Settings.RetryFailed,
		})
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i]["name"].(string) < kinds[j]["name"].(string)
	})

	c.JSON(http.StatusOK, map[string]interface{}{
		"kinds": kinds,
		"total": len(kinds),
	})
}

func (h *Handler) APIListStreams(c *gin.Context) {
	sessions := h.manager.Sessions()

	streams := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		snap := s.Controller.Snapshot()
		streams = append(streams, map[string]interface{}{
			"stream":        s.Key.String(),
			"state":         snap.State.String(),
			"items":         len(snap.Items),
			"page_index":    snap.PageIndex,
			"end_of_stream": snap.EndOfStream,
			"last_used_at":  s.LastUsed().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"streams": streams,
		"total":   len(streams),
	})
}

// APIGetStream opens the stream on first access and returns its snapshot.
func (h *Handler) APIGetStream(c *gin.Context) {
	key := stream.Key{Kind: c.Param("kind"), Owner: c.Param("owner")}

	s, _, err := h.manager.Open(key)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.respondSnapshot(c, s, h.load(c, s.Controller.LoadIfIdle))
}

func (h *Handler) APIRefreshStream(c *gin.Context) {
	s, ok := h.openSession(c)
	if !ok {
		return
	}

	h.respondSnapshot(c, s, h.load(c, s.Controller.LoadInitial))
}

func (h *Handler) APILoadMore(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	err := h.load(c, s.Controller.LoadMore)
	if errors.Is(err, stream.ErrLoadSkipped) {
		c.Header("X-Load-Skipped", "true")
		err = nil
	}

	h.respondSnapshot(c, s, err)
}

func (h *Handler) APIDismissError(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	s.Controller.DismissError()
	h.respondSnapshot(c, s, nil)
}

func (h *Handler) APICloseStream(c *gin.Context) {
	key := stream.Key{Kind: c.Param("kind"), Owner: c.Param("owner")}
	if !h.manager.Close(key) {
		h.respondError(c, session.ErrNotOpen)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) APIToggleLike(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	ctx, cancel := h.detach(c, mutationTimeout)
	defer cancel()

	item, err := s.Mutator.ToggleLike(ctx, stream.ItemID(c.Param("id")))
	h.respondItem(c, item, err)
}

func (h *Handler) APIToggleSave(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	ctx, cancel := h.detach(c, mutationTimeout)
	defer cancel()

	item, err := s.Mutator.ToggleSave(ctx, stream.ItemID(c.Param("id")))
	h.respondItem(c, item, err)
}

func (h *Handler) APIDeleteItem(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	ctx, cancel := h.detach(c, mutationTimeout)
	defer cancel()

	if err := s.Mutator.Delete(ctx, stream.ItemID(c.Param("id"))); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// APIItemAction runs a remove-style action of the stream, e.g. accepting a
// friend request.
func (h *Handler) APIItemAction(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	action := c.Param("action")
	if _, ok := s.Config.ActionPath(action); !ok {
		h.respondError(c, fmt.Errorf("%w: %s", session.ErrUnknownAction, action))
		return
	}

	ctx, cancel := h.detach(c, mutationTimeout)
	defer cancel()

	if err := s.Mutator.Remove(ctx, stream.ItemID(c.Param("id")), action); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// APIRetryFailed schedules a reload of every failed stream that allows it.
func (h *Handler) APIRetryFailed(c *gin.Context) {
	failed := h.manager.Failed()

	scheduled := make([]gin.H, 0, len(failed))
	for _, s := range failed {
		task := tasks.NewRetryStreamTask(s.Key, h.manager)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Error("Error enqueueing retry task", "stream", s.Key.String(), "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Failed to enqueue retry task",
				"details": err.Error(),
			})
			return
		}
		scheduled = append(scheduled, gin.H{
			"id":     task.ID,
			"type":   task.Type,
			"stream": task.StreamKey,
		})
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"tasks":   scheduled,
	})
}

func (h *Handler) load(c *gin.Context, fn func(context.Context) error) error {
	ctx, cancel := h.detach(c, loadTimeout)
	defer cancel()
	return fn(ctx)
}

func (h *Handler) detach(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
}

// session returns an already open stream.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	key := stream.Key{Kind: c.Param("kind"), Owner: c.Param("owner")}
	s, err := h.manager.Get(key)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) openSession(c *gin.Context) (*session.Session, bool) {
	key := stream.Key{Kind: c.Param("kind"), Owner: c.Param("owner")}
	s, _, err := h.manager.Open(key)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) respondSnapshot(c *gin.Context, s *session.Session, err error) {
	snap := s.Controller.Snapshot()
	resp := streamResponse{
		Stream:   s.Key.String(),
		Snapshot: snap,
	}

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		resp.Error = newErrorResponse(err)
	} else if snap.LastError != nil {
		resp.Error = newErrorResponse(snap.LastError)
	}

	c.JSON(status, resp)
}

func (h *Handler) respondItem(c *gin.Context, item stream.Item, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Warn("Stream request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": newErrorResponse(err)})
}

func newErrorResponse(err error) *errorResponse {
	resp := &errorResponse{Message: err.Error()}

	var se *stream.StreamError
	if errors.As(err, &se) {
		resp.Kind = se.Kind.String()
	}

	var re *stream.RejectedError
	switch {
	case errors.As(err, &re):
		resp.Reason = "rejected"
		resp.Code = re.Code
	case errors.Is(err, stream.ErrMalformedResponse):
		resp.Reason = "malformed_response"
	case errors.Is(err, stream.ErrRemoteUnavailable):
		resp.Reason = "remote_unavailable"
	}

	return resp
}

func statusFor(err error) int {
	var re *stream.RejectedError

	switch {
	case errors.Is(err, session.ErrUnknownStream),
		errors.Is(err, session.ErrStreamDisabled),
		errors.Is(err, session.ErrNotOpen),
		errors.Is(err, session.ErrUnknownAction),
		errors.Is(err, stream.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, stream.ErrSuperseded),
		errors.Is(err, stream.ErrClosed),
		errors.Is(err, stream.ErrNotConfirmed):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, stream.ErrRemoteUnavailable),
		errors.Is(err, stream.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.As(err, &re):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
