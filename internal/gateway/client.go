// HTTP client for the remote blogging API.
//
// This file implements RemoteGateway over the remote blogging REST API.
// Endpoint shapes follow the upstream convention of POST-only mutation
// endpoints with the verb encoded in the path:
//
//	POST /sites/{site}/follows/new
//	POST /sites/{site}/follows/mine/delete
//	POST /sites/{site}/comments/{comment}/replies/new   {"content": "..."}
//	POST /sites/{site}/comments/{comment}               {"content": "..."}  (update)
//	POST /sites/{site}/comments/{comment}/likes/new
//	POST /sites/{site}/comments/{comment}/likes/mine/delete
//	POST /sites/{site}/comments/{comment}/status        {"status": "..."}
//
// Moderation states map onto the status endpoint: approved, unapproved,
// spam, trash.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// moderation states accepted by the remote status endpoint.
const (
	statusApproved   = "approved"
	statusUnapproved = "unapproved"
	statusSpam       = "spam"
	statusTrash      = "trash"
)

// maxErrBody caps how much of an error response body is retained in
// StatusError for logging.
const maxErrBody = 512

// Client is the HTTP implementation of RemoteGateway.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient constructs a gateway client for the API rooted at baseURL.
// token, when non-empty, is sent as a bearer credential. timeout bounds each
// individual call in addition to the caller's context.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// FollowSite subscribes the authenticated user to siteID.
func (c *Client) FollowSite(ctx context.Context, siteID int64) error {
	return c.post(ctx, fmt.Sprintf("/sites/%d/follows/new", siteID), nil)
}

// UnfollowSite removes the authenticated user's subscription to siteID.
func (c *Client) UnfollowSite(ctx context.Context, siteID int64) error {
	return c.post(ctx, fmt.Sprintf("/sites/%d/follows/mine/delete", siteID), nil)
}

// ReplyToComment creates a reply under the given comment.
func (c *Client) ReplyToComment(ctx context.Context, siteID, commentID int64, content string) error {
	return c.post(ctx,
		fmt.Sprintf("/sites/%d/comments/%d/replies/new", siteID, commentID),
		map[string]string{"content": content})
}

// UpdateComment replaces the comment's content remotely.
func (c *Client) UpdateComment(ctx context.Context, siteID, commentID int64, content string) error {
	return c.post(ctx,
		fmt.Sprintf("/sites/%d/comments/%d", siteID, commentID),
		map[string]string{"content": content})
}

// LikeComment registers the authenticated user's like on the comment.
func (c *Client) LikeComment(ctx context.Context, siteID, commentID int64) error {
	return c.post(ctx, fmt.Sprintf("/sites/%d/comments/%d/likes/new", siteID, commentID), nil)
}

// UnlikeComment removes the authenticated user's like from the comment.
func (c *Client) UnlikeComment(ctx context.Context, siteID, commentID int64) error {
	return c.post(ctx, fmt.Sprintf("/sites/%d/comments/%d/likes/mine/delete", siteID, commentID), nil)
}

// ApproveComment moves the comment into the approved state.
func (c *Client) ApproveComment(ctx context.Context, siteID, commentID int64) error {
	return c.status(ctx, siteID, commentID, statusApproved)
}

// UnapproveComment moves the comment back to pending.
func (c *Client) UnapproveComment(ctx context.Context, siteID, commentID int64) error {
	return c.status(ctx, siteID, commentID, statusUnapproved)
}

// SpamComment flags the comment as spam.
func (c *Client) SpamComment(ctx context.Context, siteID, commentID int64) error {
	return c.status(ctx, siteID, commentID, statusSpam)
}

// DeleteComment moves the comment to trash.
func (c *Client) DeleteComment(ctx context.Context, siteID, commentID int64) error {
	return c.status(ctx, siteID, commentID, statusTrash)
}

// status posts a moderation state change for a comment.
func (c *Client) status(ctx context.Context, siteID, commentID int64, state string) error {
	return c.post(ctx,
		fmt.Sprintf("/sites/%d/comments/%d/status", siteID, commentID),
		map[string]string{"status": state})
}

// post issues a JSON POST to path and maps non-2xx statuses to StatusError.
func (c *Client) post(ctx context.Context, path string, body any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}
