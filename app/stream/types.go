package stream

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const DefaultPageSize = 20

type ItemID string

// Item is a single feed entry. Identity is ID; every other field may change
// through merge or mutation.
type Item struct {
	ID           ItemID    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	LikeCount    int       `json:"like_count"`
	LikedByUser  bool      `json:"liked_by_user"`
	Saved        bool      `json:"saved"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type Page struct {
	Index   int
	Items   []Item
	HasMore bool
}

// Key identifies one logical stream, e.g. the wall of a given profile.
type Key struct {
	Kind  string
	Owner string
}

func (k Key) String() string {
	return k.Kind + "/" + k.Owner
}

func ParseKey(s string) (Key, error) {
	kind, owner, ok := strings.Cut(s, "/")
	if !ok || kind == "" || owner == "" {
		return Key{}, fmt.Errorf("invalid stream key %q", s)
	}
	return Key{Kind: kind, Owner: owner}, nil
}

type State int

const (
	StateIdle State = iota
	StateLoadingInitial
	StateReady
	StateLoadingMore
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingInitial:
		return "loading_initial"
	case StateReady:
		return "ready"
	case StateLoadingMore:
		return "loading_more"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a consistent copy of a stream taken under the controller lock.
type Snapshot struct {
	Key         Key    `json:"-"`
	Items       []Item `json:"items"`
	PageIndex   int    `json:"page_index"`
	EndOfStream bool   `json:"end_of_stream"`
	State       State  `json:"state"`
	LastError   error  `json:"-"`
}

func (s Snapshot) IsLoadingInitial() bool { return s.State == StateLoadingInitial }
func (s Snapshot) IsLoadingMore() bool    { return s.State == StateLoadingMore }

// PageFetcher abstracts one remote paginated query. Implementations must be
// idempotent for a given page index and must not retry on their own.
type PageFetcher interface {
	FetchPage(ctx context.Context, key Key, pageIndex int) (Page, error)
}

type FetcherFunc func(ctx context.Context, key Key, pageIndex int) (Page, error)

func (f FetcherFunc) FetchPage(ctx context.Context, key Key, pageIndex int) (Page, error) {
	return f(ctx, key, pageIndex)
}

// OverlaySource supplies the ids flagged locally at session start.
type OverlaySource interface {
	SavedIDs(ctx context.Context) ([]ItemID, error)
}

// ActionDelete is the remove action behind Mutator.Delete. Streams may define
// further remove actions, e.g. accepting a friend request.
const ActionDelete = "delete"

// Remote is the set of mutation calls issued by the Mutator. Remove runs a
// named action that drops the item once the backend confirms it.
type Remote interface {
	Like(ctx context.Context, id ItemID, currentlyLiked bool) (int, error)
	Save(ctx context.Context, item Item, saved bool) (bool, error)
	Remove(ctx context.Context, action string, id ItemID) (bool, error)
}
