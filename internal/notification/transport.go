package notification

import (
	"context"
	"io"
	"net/http"

	apperrors "github.com/jwalitptl/brewery-notify/pkg/errors"
)

// Transport opens the event stream. The returned body must stop yielding
// data once ctx is cancelled or it is closed.
type Transport interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// HTTPTransport opens the stream with a plain GET, as a browser EventSource
// would.
type HTTPTransport struct {
	URL    string
	Cookie string
	// Client defaults to a client without a timeout; the stream is long-lived.
	Client *http.Client
}

func (t *HTTPTransport) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.Cookie != "" {
		req.Header.Set("Cookie", t.Cookie)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, apperrors.FromStatus(resp.StatusCode, "notification stream rejected")
	}
	return resp.Body, nil
}
