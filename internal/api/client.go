// Package api is the request/response client for the notification endpoints.
// It is the one-shot counterpart to the live channel: the bulk fetch here is
// the authoritative baseline, and the command methods are the fallback path
// when the live channel is down.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jwalitptl/notify-hub/internal/model"
	apperrors "github.com/jwalitptl/notify-hub/pkg/errors"
	"github.com/jwalitptl/notify-hub/pkg/logger"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *logger.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

func NewClient(baseURL, token string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: defaultTimeout},
		logger:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listEnvelope is the wrapped response shape; some deployments return the
// bare array instead, and List accepts both.
type listEnvelope struct {
	Data []model.Notification `json:"data"`
}

// List fetches the full notification list for the current session.
func (c *Client) List(ctx context.Context) ([]model.Notification, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/notifications", nil)
	if err != nil {
		return nil, err
	}

	raw := bytes.TrimSpace(body)
	if len(raw) > 0 && raw[0] == '[' {
		var list []model.Notification
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, apperrors.BadRequest("malformed notification list", err)
		}
		return list, nil
	}

	var envelope listEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperrors.BadRequest("malformed notification list", err)
	}
	return envelope.Data, nil
}

// MarkRead marks one notification as read. Idempotent server-side.
func (c *Client) MarkRead(ctx context.Context, id model.ID) error {
	path := fmt.Sprintf("/api/v1/notifications/%s/read", url.PathEscape(string(id)))
	_, err := c.do(ctx, http.MethodPatch, path, nil)
	return err
}

// MarkAllRead marks every notification for the session as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/notifications/read-all", nil)
	return err
}

// Delete removes one notification.
func (c *Client) Delete(ctx context.Context, id model.ID) error {
	path := fmt.Sprintf("/api/v1/notifications/%s", url.PathEscape(string(id)))
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("marshal request body: %w", err))
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, apperrors.Unavailable(method+" "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Unavailable(method+" "+path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apperrors.Unauthorized(fmt.Errorf("%s %s", method, path))
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("notification", fmt.Errorf("%s %s", method, path))
	case resp.StatusCode >= 400:
		c.logger.Debug("request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return nil, apperrors.Unavailable(method+" "+path, fmt.Errorf("status %d", resp.StatusCode))
	}

	return body, nil
}
