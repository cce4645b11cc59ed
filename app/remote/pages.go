package remote

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/lysyi3m/clubfeed/app/stream"
)

// flexID accepts both numeric and string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	*f = flexID(data)
	return nil
}

// itemDTO covers posts, comments and friend requests. Friend requests carry
// their id as guid.
type itemDTO struct {
	ID            flexID `json:"id"`
	GUID          flexID `json:"guid"`
	OwnerID       flexID `json:"owner_id"`
	TotalLikes    int    `json:"total_likes"`
	IsLikedByUser bool   `json:"is_liked_by_user"`
	TotalComments int    `json:"total_comments"`
	TimeCreated   int64  `json:"time_created"`
}

func (d itemDTO) toItem() stream.Item {
	item := stream.Item{
		ID:           stream.ItemID(cmp.Or(d.ID, d.GUID)),
		OwnerID:      string(d.OwnerID),
		LikeCount:    d.TotalLikes,
		LikedByUser:  d.IsLikedByUser,
		CommentCount: d.TotalComments,
	}
	if d.TimeCreated > 0 {
		item.CreatedAt = time.Unix(d.TimeCreated, 0).UTC()
	}
	return item
}

// PageSource fetches one stream kind from a backend listing endpoint.
type PageSource struct {
	client    *Client
	path      string
	listField string
	pageSize  int
}

// PageSource returns a fetcher for the listing at path. listField is the gjson
// path of the item array inside the payload.
func (c *Client) PageSource(path, listField string, pageSize int) *PageSource {
	if pageSize <= 0 {
		pageSize = stream.DefaultPageSize
	}
	return &PageSource{
		client:    c,
		path:      path,
		listField: listField,
		pageSize:  pageSize,
	}
}

func (s *PageSource) FetchPage(ctx context.Context, key stream.Key, pageIndex int) (stream.Page, error) {
	params := url.Values{
		"owner_guid": {key.Owner},
		"uid":        {s.client.userID},
		"page":       {strconv.Itoa(pageIndex)},
		"limit":      {strconv.Itoa(s.pageSize)},
	}

	body, err := s.client.get(ctx, s.path, params)
	if err != nil {
		return stream.Page{}, err
	}

	resp, err := Decode[[]itemDTO](body, s.listField)
	if err != nil {
		return stream.Page{}, &stream.DecodeError{Op: "GET " + s.path, Err: err}
	}

	switch r := resp.(type) {
	case Success[[]itemDTO]:
		// Rows without an id are kept so that the page size still tells
		// whether more pages follow; the merger drops them.
		items := make([]stream.Item, 0, len(r.Payload))
		for _, dto := range r.Payload {
			items = append(items, dto.toItem())
		}
		return stream.Page{
			Index:   pageIndex,
			Items:   items,
			HasMore: len(r.Payload) >= s.pageSize,
		}, nil
	case SoftMessage:
		slog.Debug("Backend returned soft message for page", "stream", key.String(), "page", pageIndex, "message", r.Text)
		return stream.Page{Index: pageIndex}, nil
	case Rejected:
		return stream.Page{}, &stream.RejectedError{Code: r.Code, Message: r.Message}
	default:
		return stream.Page{}, fmt.Errorf("unexpected response type %T", resp)
	}
}
