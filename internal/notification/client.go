// Package notification keeps a live, locally mutable view of a user's
// notifications: a stream-fed feed with bounded reconnect, and a paged
// dashboard list, both backed by one store.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/brewery-notify/internal/model"
	"github.com/jwalitptl/brewery-notify/pkg/metrics"
	"github.com/jwalitptl/brewery-notify/pkg/sse"
)

const (
	// DefaultInitialPageSize is the size of the first page loaded by Start.
	DefaultInitialPageSize = 10

	errLoadFailed     = "Failed to load notifications"
	errConnectionLost = "Lost connection to notifications. Reload or refocus the window to retry."
)

type Options struct {
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
	// Strategy is StrategyFixed (default) or StrategyExponential.
	Strategy        string
	InitialPageSize int

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// Store lets a client share entities with a Pager; nil creates one.
	Store *Store
	Now   func() time.Time
}

func (o *Options) setDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.InitialPageSize <= 0 {
		o.InitialPageSize = DefaultInitialPageSize
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNop()
	}
	if o.Store == nil {
		o.Store = NewStore()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// State is a point-in-time snapshot for rendering.
type State struct {
	Notifications     []model.Notification
	Stats             model.NotificationStats
	Connection        model.ConnectionState
	Connected         bool
	Loading           bool
	Error             string
	ReconnectAttempts int
}

// Client owns one live event stream and the mutations a user makes against
// it. Create it with NewClient and release it with Dispose.
type Client struct {
	api       API
	transport Transport
	store     *Store
	actions   *actions
	opts      Options
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	state    model.ConnectionState
	failures int
	backoff  backoff.BackOff
	timer    *time.Timer
	cancel   context.CancelFunc
	// gen identifies the current connection; callbacks carrying an older
	// value belong to a superseded connection and do nothing.
	gen      uint64
	loading  bool
	errMsg   string
	disposed bool

	wg sync.WaitGroup
}

func NewClient(api API, transport Transport, opts Options) *Client {
	opts.setDefaults()
	logger := opts.Logger.With().Str("component", "notification_client").Logger()

	return &Client{
		api:       api,
		transport: transport,
		store:     opts.Store,
		actions: &actions{
			api:     api,
			store:   opts.Store,
			logger:  logger,
			metrics: opts.Metrics,
			now:     opts.Now,
		},
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		state:   model.ConnectionDisconnected,
		backoff: newBackOff(opts.Strategy, opts.ReconnectDelay, opts.MaxReconnectDelay),
	}
}

func (c *Client) Store() *Store { return c.store }

// Subscribe registers fn to run after any change to the client or its store.
func (c *Client) Subscribe(fn func()) (unsubscribe func()) {
	return c.store.Subscribe(fn)
}

// Start loads the first page and the counters, then opens the stream. A load
// failure is surfaced through State().Error and returned, but the stream is
// opened regardless.
func (c *Client) Start(ctx context.Context) error {
	err := c.Refresh(ctx)
	c.Connect()
	return err
}

// Refresh re-fetches the first page and the counters concurrently.
func (c *Client) Refresh(ctx context.Context) error {
	c.setLoading(true)
	defer c.setLoading(false)

	var (
		wg       sync.WaitGroup
		page     *model.NotificationPage
		stats    *model.NotificationStats
		pageErr  error
		statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		page, pageErr = c.api.ListNotifications(ctx, 0, c.opts.InitialPageSize, false)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = c.api.Stats(ctx)
	}()
	wg.Wait()

	if pageErr == nil {
		c.store.ResetFeed(page.Content)
	}
	if statsErr == nil {
		c.store.SetStats(*stats)
	}

	if err := errors.Join(pageErr, statsErr); err != nil {
		c.logger.Error().Err(err).Msg("failed to load notifications")
		c.setError(errLoadFailed)
		return err
	}
	return nil
}

// Connect opens the stream unless one is already open or opening.
func (c *Client) Connect() {
	c.mu.Lock()
	changed := c.connectLocked()
	c.mu.Unlock()
	if changed {
		c.store.notify()
	}
}

func (c *Client) connectLocked() bool {
	if c.disposed || c.state == model.ConnectionConnecting || c.state == model.ConnectionConnected {
		return false
	}
	c.stopTimerLocked()

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStateLocked(model.ConnectionConnecting)

	c.wg.Add(1)
	go c.run(ctx, gen)
	return true
}

// Disconnect closes the stream and cancels any pending reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.teardownLocked()
	c.setStateLocked(model.ConnectionDisconnected)
	c.mu.Unlock()
	c.store.notify()
}

// Dispose releases the client for good and waits for its stream goroutine to
// exit. It must not be called from a Subscribe callback.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.teardownLocked()
	c.setStateLocked(model.ConnectionDisconnected)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Debug().Msg("notification client disposed")
	c.store.notify()
}

func (c *Client) teardownLocked() {
	c.stopTimerLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Focus is called when the host regains focus. Without a live or opening
// stream it resets the failure count and connects.
func (c *Client) Focus() {
	c.mu.Lock()
	if c.disposed || c.state == model.ConnectionConnected || c.state == model.ConnectionConnecting {
		c.mu.Unlock()
		return
	}
	c.logger.Info().Int("failures", c.failures).Msg("focus regained, reconnecting")
	c.failures = 0
	c.backoff.Reset()
	changed := c.connectLocked()
	c.mu.Unlock()
	if changed {
		c.store.notify()
	}
}

func (c *Client) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()

	body, err := c.transport.Open(ctx)
	if err != nil {
		c.handleDrop(ctx, gen, err)
		return
	}
	defer body.Close()
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	if !c.markOpen(gen) {
		return
	}
	err = c.consume(body)
	c.handleDrop(ctx, gen, err)
}

func (c *Client) markOpen(gen uint64) bool {
	c.mu.Lock()
	if gen != c.gen || c.disposed {
		c.mu.Unlock()
		return false
	}
	c.failures = 0
	c.backoff.Reset()
	c.setStateLocked(model.ConnectionConnected)
	c.mu.Unlock()
	c.store.notify()
	return true
}

// consume applies events until the stream ends. A clean end returns nil.
func (c *Client) consume(body io.Reader) error {
	dec := sse.NewDecoder(body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		c.dispatch(ev)
	}
}

// handleDrop decides what happens after a connection ends. Intentional
// teardowns are ignored; otherwise a reconnect is scheduled until the failure
// bound is reached.
func (c *Client) handleDrop(ctx context.Context, gen uint64, err error) {
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.disposed {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if err != nil {
		c.setStateLocked(model.ConnectionFailed)
	} else {
		c.setStateLocked(model.ConnectionDisconnected)
	}
	c.failures++

	if c.failures >= c.opts.MaxReconnectAttempts {
		c.errMsg = errConnectionLost
		c.logger.Warn().Err(err).Int("failures", c.failures).Msg("giving up on notification stream")
	} else {
		delay := c.backoff.NextBackOff()
		c.logger.Warn().Err(err).
			Int("failures", c.failures).
			Dur("retry_in", delay).
			Msg("notification stream dropped, scheduling reconnect")
		c.timer = time.AfterFunc(delay, func() { c.reconnect(gen) })
	}
	c.mu.Unlock()
	c.store.notify()
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.disposed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.metrics.ClientReconnects.Inc()
	changed := c.connectLocked()
	c.mu.Unlock()
	if changed {
		c.store.notify()
	}
}

func (c *Client) dispatch(ev *sse.Event) {
	log := c.logger.With().Str("event", ev.Name).Logger()

	switch ev.Name {
	case model.EventConnected:
		c.setError("")
		log.Debug().Msg("stream acknowledged")

	case model.EventInitialNotifications:
		var batch []model.Notification
		if !c.decode(ev, &batch) {
			return
		}
		if c.store.ApplyInitialBatch(batch) {
			log.Debug().Int("count", len(batch)).Msg("applied initial notifications")
		} else {
			log.Debug().Int("count", len(batch)).Msg("initial notifications not larger than feed, ignored")
		}

	case model.EventNotification:
		var n model.Notification
		if !c.decode(ev, &n) {
			return
		}
		c.store.Prepend(n)
		log.Debug().Int64("notification_id", n.ID).Str("type", string(n.Type)).Msg("notification received")

	case model.EventStatsUpdate:
		var stats model.NotificationStats
		if !c.decode(ev, &stats) {
			return
		}
		c.store.SetStats(stats)

	default:
		log.Debug().Msg("ignoring unknown stream event")
		c.metrics.ClientEvents.WithLabelValues("unknown").Inc()
		return
	}

	c.metrics.ClientEvents.WithLabelValues(ev.Name).Inc()
}

func (c *Client) decode(ev *sse.Event, v interface{}) bool {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		c.metrics.ClientDecodeErrors.Inc()
		c.logger.Error().Err(err).Str("event", ev.Name).Msg("failed to decode stream event")
		return false
	}
	return true
}

func (c *Client) setStateLocked(s model.ConnectionState) {
	if c.state == s {
		return
	}
	c.logger.Debug().Str("from", string(c.state)).Str("to", string(s)).Msg("connection state changed")
	c.state = s
}

func (c *Client) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
	c.store.notify()
}

func (c *Client) setError(msg string) {
	c.mu.Lock()
	changed := c.errMsg != msg
	c.errMsg = msg
	c.mu.Unlock()
	if changed {
		c.store.notify()
	}
}

func (c *Client) ClearError() { c.setError("") }

func (c *Client) State() State {
	c.mu.Lock()
	st := State{
		Connection:        c.state,
		Connected:         c.state == model.ConnectionConnected,
		Loading:           c.loading,
		Error:             c.errMsg,
		ReconnectAttempts: c.failures,
	}
	c.mu.Unlock()

	st.Notifications = c.store.Feed()
	st.Stats = c.store.Stats()
	return st
}

func (c *Client) IsMarking(id int64) bool { return c.store.IsMarking(id) }

// MarkAsRead optimistically marks id read. On failure the local change is
// rolled back and the error returned.
func (c *Client) MarkAsRead(ctx context.Context, id int64) error {
	return c.actions.markAsRead(ctx, id)
}

func (c *Client) MarkAllAsRead(ctx context.Context) error {
	return c.actions.markAllAsRead(ctx)
}
