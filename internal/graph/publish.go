package graph

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/huandu/facebook"
)

// PublishState tracks a two-step publication.
type PublishState string

const (
	StateCreated       PublishState = "created"
	StatePublished     PublishState = "published"
	StatePublishFailed PublishState = "publish_failed"
)

// Publication is the outcome of CreatePost. ContainerID is set once step
// one succeeded; MediaID only after publishing.
type Publication struct {
	ContainerID string       `json:"container_id"`
	MediaID     string       `json:"media_id,omitempty"`
	State       PublishState `json:"state"`
}

// PartialPublishError reports a container that was created but not
// published. The container can be published again with PublishContainer
// without uploading the media a second time.
type PartialPublishError struct {
	AccountID   string
	ContainerID string
	Err         error
}

func (e *PartialPublishError) Error() string {
	return fmt.Sprintf("container %s created but not published: %v", e.ContainerID, e.Err)
}

func (e *PartialPublishError) Unwrap() error {
	return e.Err
}

type idResult struct {
	ID string `facebook:"id"`
}

// CreatePost creates an image container and publishes it.
func (c *Client) CreatePost(ctx context.Context, accountID string, in PostInput) (*Publication, error) {
	const op = "create post"
	if accountID == "" {
		return nil, validationError(op, "account id is required")
	}
	if strings.TrimSpace(in.MediaURL) == "" {
		return nil, validationError(op, "media url is required")
	}

	params := facebook.Params{
		"image_url": in.MediaURL,
		"caption":   in.Caption,
	}
	if in.LocationID != "" {
		params["location_id"] = in.LocationID
	}

	containerID, err := c.createContainer(ctx, op, accountID, params)
	if err != nil {
		return nil, err
	}
	pub := &Publication{ContainerID: containerID, State: StateCreated}

	mediaID, err := c.PublishContainer(ctx, accountID, containerID)
	if err != nil {
		pub.State = StatePublishFailed
		return pub, &PartialPublishError{AccountID: accountID, ContainerID: containerID, Err: err}
	}

	pub.MediaID = mediaID
	pub.State = StatePublished
	return pub, nil
}

// CreateStory creates a story container and returns its ID. The story is
// not visible until the container is passed to PublishContainer.
func (c *Client) CreateStory(ctx context.Context, accountID string, in StoryInput) (string, error) {
	const op = "create story"
	if accountID == "" {
		return "", validationError(op, "account id is required")
	}
	if strings.TrimSpace(in.MediaURL) == "" {
		return "", validationError(op, "media url is required")
	}

	params := facebook.Params{
		"image_url":  in.MediaURL,
		"media_type": "STORIES",
	}
	if in.Caption != "" {
		params["caption"] = in.Caption
	}
	return c.createContainer(ctx, op, accountID, params)
}

// PublishContainer publishes a previously created container and returns the media ID.
func (c *Client) PublishContainer(ctx context.Context, accountID, containerID string) (string, error) {
	const op = "publish media"
	if accountID == "" || containerID == "" {
		return "", validationError(op, "account id and container id are required")
	}

	res, err := c.call(ctx, op, facebook.POST, "/"+accountID+"/media_publish", facebook.Params{
		"creation_id": containerID,
	})
	if err != nil {
		return "", err
	}
	return decodeID(op, res)
}

func (c *Client) createContainer(ctx context.Context, op, accountID string, params facebook.Params) (string, error) {
	res, err := c.call(ctx, op, facebook.POST, "/"+accountID+"/media", params)
	if err != nil {
		return "", err
	}
	return decodeID(op, res)
}

func decodeID(op string, res facebook.Result) (string, error) {
	var out idResult
	if err := res.Decode(&out); err != nil {
		return "", decodeError(op, err)
	}
	if out.ID == "" {
		return "", &Error{
			Op:         op,
			Reason:     ReasonUnknown,
			StatusCode: http.StatusOK,
			Message:    "response has no id",
		}
	}
	return out.ID, nil
}
