// Package api is the authenticated request pipeline between the client and
// the Ecodeed backend. Every outbound call goes through Client.Do, which
// attaches the bearer token, retries exactly once after a silent token
// refresh on 401, and translates failures into the package error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecodeed/authkit/credstore"
	"github.com/ecodeed/authkit/log"
)

// RawBody bypasses JSON encoding for binary or multipart payloads. When
// ContentType is empty no Content-Type header is set, letting the transport
// (or a multipart writer) declare its own.
type RawBody struct {
	ContentType string
	Data        []byte
}

// Client issues requests against one backend base URL.
type Client struct {
	baseURL   string
	http      *http.Client
	store     credstore.Store
	refresher *Refresher
	log       log.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l log.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRefresher wires the single-flight refresh coordinator into the
// pipeline. Without one, a 401 is surfaced immediately.
func WithRefresher(r *Refresher) Option {
	return func(c *Client) { c.refresher = r }
}

func New(baseURL string, store credstore.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		store:   store,
		log:     log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends one request. body may be nil, a RawBody, or any JSON-encodable
// value; out, when non-nil, receives the decoded JSON response body.
//
// If the response is 401 and a bearer token was attached, the refresh
// coordinator runs once and the request is rebuilt and reissued exactly
// once with the new token. A request is never retried more than once.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	creds, err := c.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}

	// Refresh ahead of a doomed request when the access token is already
	// past its exp claim. Failure here is not fatal: the coordinator has
	// either cleared the store (terminal) or left it usable, and the
	// request below proceeds with whatever the store now holds.
	if creds.AccessToken != "" && c.refresher != nil && tokenExpired(creds.AccessToken, time.Now()) {
		if err := c.refresher.Refresh(ctx); err != nil {
			c.log.DebugContext(ctx, "proactive token refresh failed", "error", err)
		}
		if creds, err = c.store.Read(ctx); err != nil {
			return fmt.Errorf("read credentials: %w", err)
		}
	}

	err = c.send(ctx, method, path, body, out, creds.AccessToken)

	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || creds.AccessToken == "" || c.refresher == nil {
		return err
	}

	// Single silent refresh, then exactly one reissue. The refreshed token
	// is durably written before Refresh returns, so the retried request
	// cannot race a stale store.
	if refreshErr := c.refresher.Refresh(ctx); refreshErr != nil {
		c.log.InfoContext(ctx, "token refresh failed, surfacing unauthorized", "error", refreshErr)
		return wrapError(ErrUnauthorized, "your session has expired, please sign in again", refreshErr)
	}

	creds, err = c.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	return c.send(ctx, method, path, body, out, creds.AccessToken)
}

// send builds and issues a single request attempt.
func (c *Client) send(ctx context.Context, method, path string, body, out any, accessToken string) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return wrapError(ErrNetwork, "could not reach the server, check your connection and try again", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return wrapError(ErrNetwork, "connection interrupted while reading the response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := translate(resp.StatusCode, data)
		c.log.DebugContext(ctx, "request failed",
			"method", method, "path", path,
			"status", resp.StatusCode, "kind", apiErr.Kind)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.WarnContext(ctx, "undecodable success response", "path", path, "error", err)
		return wrapError(ErrMalformedResponse, "the server sent an unreadable response", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var (
		reader      io.Reader
		contentType string
	)

	switch b := body.(type) {
	case nil:
	case RawBody:
		reader, contentType = bytes.NewReader(b.Data), b.ContentType
	case *RawBody:
		reader, contentType = bytes.NewReader(b.Data), b.ContentType
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// translate maps a non-2xx response to the error taxonomy. 5xx bodies are
// never parsed: they are as likely to be an HTML error page as JSON.
func translate(status int, data []byte) *Error {
	if status >= 500 {
		return newError(ErrServerUnavailable, status, "the server is temporarily unavailable, please try again shortly")
	}

	message, fields := parseErrorBody(data)

	switch status {
	case http.StatusUnauthorized:
		if message == "" {
			message = "authentication required"
		}
		return newError(ErrUnauthorized, status, message)
	case http.StatusForbidden:
		if message == "" {
			message = "you do not have permission to do that"
		}
		return newError(ErrForbidden, status, message)
	case http.StatusNotFound:
		if message == "" {
			message = "not found"
		}
		return newError(ErrNotFound, status, message)
	}

	if len(fields) > 0 {
		e := newError(ErrValidationFailed, status, "please correct the highlighted fields")
		e.Fields = fields
		return e
	}
	if message != "" {
		return newError(ErrValidationFailed, status, message)
	}
	return newError(ErrValidationFailed, status, statusMessage(status))
}

// parseErrorBody extracts a single message ("error"/"detail"/"message" keys)
// or a DRF-style field error map from an error response body.
func parseErrorBody(data []byte) (string, map[string]string) {
	if len(data) == 0 {
		return "", nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", nil
	}

	for _, key := range []string{"error", "detail", "message"} {
		var msg string
		if v, ok := raw[key]; ok && json.Unmarshal(v, &msg) == nil && msg != "" {
			return msg, nil
		}
	}

	fields := make(map[string]string)
	for key, v := range raw {
		var list []string
		if json.Unmarshal(v, &list) == nil && len(list) > 0 {
			fields[key] = strings.Join(list, " ")
			continue
		}
		var msg string
		if json.Unmarshal(v, &msg) == nil && msg != "" {
			fields[key] = msg
		}
	}
	if len(fields) == 0 {
		return "", nil
	}
	return "", fields
}
