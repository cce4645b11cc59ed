package remote

import (
	"context"
	"fmt"
	"net/url"

	"github.com/lysyi3m/clubfeed/app/stream"
)

const (
	likeAddPath    = "/like/add"
	likeRemovePath = "/like/delete"
)

type reactionDTO struct {
	TotalLikes int `json:"total_likes"`
}

type confirmationDTO struct {
	Success bool `json:"success"`
}

// Like adds or removes the viewer's like depending on currentlyLiked and
// returns the backend's total like count. likeType names the liked subject,
// e.g. post or comment.
func (c *Client) Like(ctx context.Context, id stream.ItemID, currentlyLiked bool, likeType string) (int, error) {
	path := likeAddPath
	if currentlyLiked {
		path = likeRemovePath
	}

	params := url.Values{
		"uid":          {c.userID},
		"subject_guid": {string(id)},
		"type":         {likeType},
	}

	reaction, err := mutate[reactionDTO](ctx, c, path, params)
	if err != nil {
		return 0, err
	}
	return reaction.TotalLikes, nil
}

// Remove posts a confirmed action on one item to path: deleting a post or a
// comment, accepting or declining a friend request. The returned flag is the
// backend's confirmation.
func (c *Client) Remove(ctx context.Context, path string, id stream.ItemID) (bool, error) {
	params := url.Values{
		"uid":  {c.userID},
		"guid": {string(id)},
	}

	confirmation, err := mutate[confirmationDTO](ctx, c, path, params)
	if err != nil {
		return false, err
	}
	return confirmation.Success, nil
}

// mutate posts a mutation and unwraps the envelope. A soft message is treated
// as a failure since the mutation did not take place.
func mutate[T any](ctx context.Context, c *Client, path string, params url.Values) (T, error) {
	var zero T

	body, err := c.post(ctx, path, params)
	if err != nil {
		return zero, err
	}

	resp, err := Decode[T](body, "")
	if err != nil {
		return zero, &stream.DecodeError{Op: "POST " + path, Err: err}
	}

	switch r := resp.(type) {
	case Success[T]:
		return r.Payload, nil
	case SoftMessage:
		return zero, &stream.RejectedError{Code: CodeSoftMessage, Message: r.Text}
	case Rejected:
		return zero, &stream.RejectedError{Code: r.Code, Message: r.Message}
	default:
		return zero, fmt.Errorf("unexpected response type %T", resp)
	}
}
