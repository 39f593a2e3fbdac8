// Package integrations talks to the backend's third-party bridges: ticket
// creation, booking availability and lead capture.
package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"chatstream/pkg/logger"
)

// ErrMissingRequiredField is returned before any request is sent when the
// payload lacks a mandatory value.
var ErrMissingRequiredField = errors.New("missing required field")

// APIError is a non-success answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("integration request failed (%d): %s", e.Status, e.Message)
}

type Option func(*Client)

// WithDial replaces the dialer, mainly for in-memory listeners in tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.hc.Dial = dial }
}

// Client is shared by the ticket, slot and lead calls.
type Client struct {
	base        string
	workspaceID string
	timeout     time.Duration
	hc          *fasthttp.Client
}

func New(baseURL, workspaceID string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		base:        strings.TrimRight(baseURL, "/"),
		workspaceID: workspaceID,
		timeout:     timeout,
		hc: &fasthttp.Client{
			Name:                "chatstream",
			MaxIdleConnDuration: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) WorkspaceID() string { return c.workspaceID }

// envelope is the common response shape: {success, error|detail, ...}.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

// do sends the request and decodes a successful JSON body into out. The
// deadline is the earlier of the client timeout and ctx's deadline.
func (c *Client) do(ctx context.Context, method, path string, args *fasthttp.Args, body any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.base + path
	if args != nil && args.Len() > 0 {
		uri += "?" + args.String()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	start := time.Now()
	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		logger.Warn("integration_request_failed", "path", path, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	logger.Debug("integration_request", "path", path, "status", resp.StatusCode(), "elapsed", time.Since(start))

	raw := resp.Body()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		msg := env.Detail
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode(), Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
