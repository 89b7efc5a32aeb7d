package client

import (
	"bufio"
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

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/model"
)

// HTTPClient implements GateClient using the timegate HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ GateClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Host integration ---

func (c *HTTPClient) Evaluate(ctx context.Context, req *api.EvaluateRequest) (*model.Decision, error) {
	var d model.Decision
	if err := c.doJSON(ctx, http.MethodPost, "/v1/actions/evaluate", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResult, error) {
	var res api.LoginResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/login", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) MOTD(ctx context.Context) (*api.MOTD, error) {
	var m api.MOTD
	if err := c.doJSON(ctx, http.MethodGet, "/v1/motd", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// --- Presence ---

func (c *HTTPClient) Join(ctx context.Context, req *api.PresenceRequest) (*api.PresenceResponse, error) {
	var resp api.PresenceResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/presence/join", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Quit(ctx context.Context, req *api.PresenceRequest) (*api.PresenceResponse, error) {
	var resp api.PresenceResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/presence/quit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Roster(ctx context.Context) (*api.Roster, error) {
	var r api.Roster
	if err := c.doJSON(ctx, http.MethodGet, "/v1/presence", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// --- Administration ---

func (c *HTTPClient) Status(ctx context.Context) (*api.StatusResponse, error) {
	var st api.StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) SetOverride(ctx context.Context, req *api.OverrideRequest) (*api.OverrideResponse, error) {
	var resp api.OverrideResponse
	if err := c.doJSON(ctx, http.MethodPut, "/v1/override", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Reload(ctx context.Context, actor string) (*api.ReloadResponse, error) {
	var resp api.ReloadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/reload", api.ReloadRequest{Actor: actor}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Rules(ctx context.Context) (*api.PolicyView, error) {
	var v api.PolicyView
	if err := c.doJSON(ctx, http.MethodGet, "/v1/rules", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- Audit log ---

func (c *HTTPClient) ListEvents(ctx context.Context, req *api.EventsRequest) (*api.EventsResponse, error) {
	q := url.Values{}
	if req.Topic != "" {
		q.Set("topic", req.Topic)
	}
	if req.Actor != "" {
		q.Set("actor", req.Actor)
	}
	if !req.Since.IsZero() {
		q.Set("since", req.Since.UTC().Format(time.RFC3339))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp api.EventsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamEvent is one event read from the server-sent event stream.
type StreamEvent struct {
	ID    string
	Topic string
	Data  json.RawMessage
}

// StreamEvents follows GET /v1/events/stream and calls fn for every event
// until ctx is cancelled, the server closes the stream, or fn returns an
// error. topics are NATS-style patterns; lastEventID resumes after a
// previously seen event.
func (c *HTTPClient) StreamEvents(ctx context.Context, topics []string, lastEventID string, fn func(StreamEvent) error) error {
	path := "/v1/events/stream"
	if len(topics) > 0 {
		path += "?" + url.Values{"topics": {strings.Join(topics, ",")}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	var current StreamEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "id:"):
			current.ID = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			current.Topic = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			current.Data = json.RawMessage(strings.TrimPrefix(line, "data:"))
		case line == "":
			if current.Topic == "" && current.Data == nil {
				continue
			}
			if err := fn(current); err != nil {
				return err
			}
			current = StreamEvent{}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp api.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Details    []api.FieldError
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %d: %s", e.StatusCode, e.Message)
	for _, d := range e.Details {
		b.WriteString("\n  ")
		if d.Rule != "" {
			fmt.Fprintf(&b, "rule %q: ", d.Rule)
		}
		if d.Field != "" {
			b.WriteString(d.Field + ": ")
		}
		b.WriteString(d.Message)
	}
	return b.String()
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func decodeAPIError(status int, body []byte) error {
	var errResp api.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Message: errResp.Error, Details: errResp.Details}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
