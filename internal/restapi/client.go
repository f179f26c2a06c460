package restapi

import (
	"bytes"
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

	"github.com/jwalitptl/brewery-notify/internal/model"
	"github.com/jwalitptl/brewery-notify/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/brewery-notify/pkg/errors"
)

type Config struct {
	// BaseURL is the notification resource root, e.g. http://host/api/notifications.
	BaseURL string
	// Cookie is sent verbatim on every request (session cookie).
	Cookie  string
	Timeout time.Duration
	// BreakerFailures consecutive failures open the circuit; 0 uses the default.
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// Client talks to the backend notification REST endpoints.
type Client struct {
	baseURL    string
	cookie     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cookie:     cfg.Cookie,
		httpClient: &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "notifications-rest",
			MaxFailures: cfg.BreakerFailures,
			Timeout:     cfg.BreakerTimeout,
			IsFailure:   isBreakerFailure,
			Ignore:      isCallerCancel,
		}),
	}
}

// 4xx answers mean the backend is healthy; only transport errors and 5xx
// count against the breaker.
func isBreakerFailure(err error) bool {
	status := apperrors.Status(err)
	return status == 0 || status >= http.StatusInternalServerError
}

// A call its caller cancelled says nothing about the backend.
func isCallerCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}

// ListNotifications fetches one page (0-based) of notifications.
func (c *Client) ListNotifications(ctx context.Context, page, size int, unreadOnly bool) (*model.NotificationPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if unreadOnly {
		q.Set("unreadOnly", "true")
	}

	var out model.NotificationPage
	if err := c.do(ctx, http.MethodGet, "?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*model.NotificationStats, error) {
	var out model.NotificationStats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch notification stats: %w", err)
	}
	return &out, nil
}

// MarkAsRead marks one notification read and returns the backend's updated copy.
func (c *Client) MarkAsRead(ctx context.Context, id int64) (*model.Notification, error) {
	var out model.Notification
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/%d/read", id), nil, &out); err != nil {
		return nil, fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return &out, nil
}

func (c *Client) MarkAllAsRead(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPatch, "/read-all", nil, nil); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	err := c.breaker.Execute(func() error {
		return c.roundTrip(ctx, method, path, body, result)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return apperrors.NewUnavailable("notification backend unavailable", err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.FromStatus(resp.StatusCode, errorMessage(resp.Body))
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls a message out of a backend error body, if it has one.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
