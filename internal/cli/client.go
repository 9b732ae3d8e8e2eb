package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harun/vigil/pkg/api"
	"github.com/harun/vigil/pkg/notification"
	"github.com/harun/vigil/pkg/scheduler"
	"github.com/harun/vigil/pkg/tool"
	"github.com/harun/vigil/pkg/webhook"
)

// Client talks to a running daemon over its HTTP API
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// APIError is a non-2xx response from the daemon
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// ToolView is a registry entry plus its loop state
type ToolView struct {
	tool.Info
	Schedule *scheduler.Status `json:"schedule,omitempty"`
}

// Health is the daemon health summary
type Health struct {
	Status               string `json:"status"`
	Tools                int    `json:"tools"`
	Running              int    `json:"running"`
	PendingNotifications int    `json:"pending_notifications"`
	ScheduledEvents      int    `json:"scheduled_events"`
	StreamClients        int    `json:"stream_clients"`
}

// NotificationFilter narrows a notification listing
type NotificationFilter struct {
	State string
	Tool  string
	Limit int
}

// NewClient creates a client for addr, which may be host:port or a URL
func NewClient(addr, secret string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		secret:  secret,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	return c.send(ctx, method, path, data, nil, out)
}

// send issues one request with a pre-encoded JSON body
func (c *Client) send(ctx context.Context, method, path string, data []byte, header http.Header, out any) error {
	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set(api.SecretHeader, c.secret)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBody, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
			apiErr.Code = body.Code
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health fetches the health summary
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &h)
	return h, err
}

// ListTools lists registered tools
func (c *Client) ListTools(ctx context.Context) ([]ToolView, error) {
	var tools []ToolView
	err := c.do(ctx, http.MethodGet, "/api/tools", nil, &tools)
	return tools, err
}

// StartTool starts an Active tool's loop
func (c *Client) StartTool(ctx context.Context, name string) (scheduler.Status, error) {
	var st scheduler.Status
	err := c.do(ctx, http.MethodPost, "/api/tools/"+url.PathEscape(name)+"/start", nil, &st)
	return st, err
}

// StopTool stops an Active tool's loop
func (c *Client) StopTool(ctx context.Context, name string) (scheduler.Status, error) {
	var st scheduler.Status
	err := c.do(ctx, http.MethodPost, "/api/tools/"+url.PathEscape(name)+"/stop", nil, &st)
	return st, err
}

// CheckTool runs one check of an Active tool
func (c *Client) CheckTool(ctx context.Context, name string) (tool.CheckResult, error) {
	var res tool.CheckResult
	err := c.do(ctx, http.MethodPost, "/api/tools/"+url.PathEscape(name)+"/check", nil, &res)
	return res, err
}

// UpdateToolConfig replaces a tool's raw options
func (c *Client) UpdateToolConfig(ctx context.Context, name string, options map[string]any) (ToolView, error) {
	var v ToolView
	err := c.do(ctx, http.MethodPut, "/api/tools/"+url.PathEscape(name)+"/config", options, &v)
	return v, err
}

// ListNotifications lists notifications matching f
func (c *Client) ListNotifications(ctx context.Context, f NotificationFilter) ([]notification.Notification, error) {
	q := url.Values{}
	if f.State != "" {
		q.Set("state", f.State)
	}
	if f.Tool != "" {
		q.Set("tool", f.Tool)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	path := "/api/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []notification.Notification
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// GetNotification fetches one notification
func (c *Client) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	var n notification.Notification
	err := c.do(ctx, http.MethodGet, "/api/notifications/"+url.PathEscape(id), nil, &n)
	return n, err
}

// Respond approves, rejects or dismisses a pending notification
func (c *Client) Respond(ctx context.Context, id string, action notification.Action) (notification.Notification, error) {
	var n notification.Notification
	err := c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/respond",
		map[string]any{"action": action}, &n)
	return n, err
}

// ListScheduledEvents lists pending scheduled events
func (c *Client) ListScheduledEvents(ctx context.Context) ([]notification.ScheduledEvent, error) {
	var out []notification.ScheduledEvent
	err := c.do(ctx, http.MethodGet, "/api/scheduled-events", nil, &out)
	return out, err
}

// ScheduleEvent creates a scheduled event
func (c *Client) ScheduleEvent(ctx context.Context, p notification.EventParams) (notification.ScheduledEvent, error) {
	var e notification.ScheduledEvent
	err := c.do(ctx, http.MethodPost, "/api/scheduled-events", p, &e)
	return e, err
}

// CancelScheduledEvent removes a scheduled event
func (c *Client) CancelScheduledEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/scheduled-events/"+url.PathEscape(id), nil, nil)
}

// SendWebhook posts a raw trigger body to /hooks/{source}. The body is sent
// byte for byte so a signature computed over it stays valid.
func (c *Client) SendWebhook(ctx context.Context, source string, body []byte, signatureHeader, signature string) (webhook.Accepted, error) {
	var header http.Header
	if signature != "" {
		header = http.Header{}
		header.Set(signatureHeader, signature)
	}

	var out webhook.Accepted
	err := c.send(ctx, http.MethodPost, "/hooks/"+url.PathEscape(source), body, header, &out)
	return out, err
}
