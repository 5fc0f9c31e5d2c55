package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnreachable wraps transport failures, meaning no daemon answered.
var ErrUnreachable = errors.New("daemon unreachable")

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the daemon listening on addr (host:port).
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Addr returns the daemon base URL.
func (c *Client) Addr() string {
	return c.baseURL
}

// Ping reports whether the daemon answers its health check.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/healthz", nil)
}

// Status fetches /v1/status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/v1/status", &st)
	return st, err
}

// Start asks the daemon to start tracking.
func (c *Client) Start(ctx context.Context) (StartResponse, error) {
	var resp StartResponse
	err := c.do(ctx, http.MethodPost, "/v1/start", &resp)
	return resp, err
}

// Stop asks the daemon to stop tracking. A persistence failure comes back as
// an *APIError with status 500.
func (c *Client) Stop(ctx context.Context) (StopResponse, error) {
	var resp StopResponse
	err := c.do(ctx, http.MethodPost, "/v1/stop", &resp)
	return resp, err
}

// Weeks fetches up to maxWeeks week rows.
func (c *Client) Weeks(ctx context.Context, maxWeeks int) (WeeksResponse, error) {
	var resp WeeksResponse
	q := url.Values{"max": {strconv.Itoa(maxWeeks)}}
	err := c.do(ctx, http.MethodGet, "/v1/weeks?"+q.Encode(), &resp)
	return resp, err
}

// Week fetches the current ISO week total.
func (c *Client) Week(ctx context.Context) (WeekResponse, error) {
	var resp WeekResponse
	err := c.do(ctx, http.MethodGet, "/v1/week", &resp)
	return resp, err
}

// Events fetches the recent event buffer.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var events []Event
	err := c.do(ctx, http.MethodGet, "/v1/events", &events)
	return events, err
}

// Stream calls fn for each event on /v1/stream until ctx is canceled or the
// connection drops.
func (c *Client) Stream(ctx context.Context, fn func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout: the stream is long-lived.
	resp, err := (&http.Client{Transport: c.http.Transport}).Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode}
	}
	if err := readSSE(resp.Body, fn); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func readSSE(r io.Reader, fn func(Event)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				var ev Event
				if err := json.Unmarshal([]byte(data.String()), &ev); err == nil {
					fn(ev)
				}
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return sc.Err()
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
