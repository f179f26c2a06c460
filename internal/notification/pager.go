package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/brewery-notify/internal/model"
	"github.com/jwalitptl/brewery-notify/pkg/metrics"
)

type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
	FilterRead   Filter = "read"
)

const DefaultPageSize = 10

const errStatsFailed = "Failed to refresh notification counts"

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case FilterAll, FilterUnread, FilterRead:
		return f, nil
	case "":
		return FilterAll, nil
	default:
		return "", fmt.Errorf("unknown notification filter %q", s)
	}
}

type PagerOptions struct {
	PageSize int
	Filter   Filter
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	// Store should be the live client's store so both views share entities.
	Store *Store
	Now   func() time.Time
}

// PageView is a snapshot of the pager for rendering.
type PageView struct {
	Items           []model.Notification
	Stats           model.NotificationStats
	Filter          Filter
	CurrentPage     int
	PageSize        int
	TotalPages      int
	TotalItems      int
	HasNextPage     bool
	HasPreviousPage bool
	Loading         bool
	Error           string
}

// Pager serves the dashboard's paged, filtered notification list. Read
// operations never return errors; failures land in Error().
type Pager struct {
	api     API
	store   *Store
	actions *actions
	logger  zerolog.Logger

	mu         sync.Mutex
	pageSize   int
	filter     Filter
	page       int
	ids        []int64
	totalPages int
	totalItems int
	loading    bool
	errMsg     string
	// seq numbers loads; a response whose seq is no longer current is dropped.
	seq uint64
}

func NewPager(api API, opts PagerOptions) *Pager {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Filter == "" {
		opts.Filter = FilterAll
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.With().Str("component", "notification_pager").Logger()

	return &Pager{
		api:   api,
		store: opts.Store,
		actions: &actions{
			api:     api,
			store:   opts.Store,
			logger:  logger,
			metrics: opts.Metrics,
			now:     opts.Now,
		},
		logger:   logger,
		pageSize: opts.PageSize,
		filter:   opts.Filter,
	}
}

func (p *Pager) Subscribe(fn func()) (unsubscribe func()) {
	return p.store.Subscribe(fn)
}

type pageResult struct {
	ids        []int64
	totalItems int
	totalPages int
}

// Load fetches the current page for the current filter, plus fresh counters.
func (p *Pager) Load(ctx context.Context) {
	p.mu.Lock()
	filter, page := p.filter, p.page
	p.mu.Unlock()
	p.load(ctx, filter, page)
}

// load fetches page for filter and, only if the list call succeeds, makes
// them current. A failed list leaves the previous page on display; a failed
// stats call keeps the new page and reports its own error.
func (p *Pager) load(ctx context.Context, filter Filter, page int) {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	size := p.pageSize
	p.loading = true
	p.errMsg = ""
	p.mu.Unlock()
	p.store.notify()

	log := p.logger.With().Int("page", page).Str("filter", string(filter)).Logger()

	res, err := p.fetch(ctx, filter, page, size)
	var statsErr error
	if err == nil {
		var stats *model.NotificationStats
		if stats, statsErr = p.api.Stats(ctx); statsErr == nil {
			p.store.SetStats(*stats)
		}
	}

	p.mu.Lock()
	if seq != p.seq {
		p.mu.Unlock()
		log.Debug().Msg("discarding superseded page response")
		return
	}
	p.loading = false
	switch {
	case err != nil:
		p.errMsg = errLoadFailed
		log.Error().Err(err).Msg("failed to load notification page")
	default:
		p.filter = filter
		p.page = page
		p.ids = res.ids
		p.totalItems = res.totalItems
		p.totalPages = res.totalPages
		if statsErr != nil {
			p.errMsg = errStatsFailed
			log.Warn().Err(statsErr).Msg("page loaded but stats refresh failed")
		}
	}
	p.mu.Unlock()
	p.store.notify()
}

func (p *Pager) fetch(ctx context.Context, filter Filter, page, size int) (pageResult, error) {
	res, err := p.api.ListNotifications(ctx, page, size, filter == FilterUnread)
	if err != nil {
		return pageResult{}, err
	}
	merged := p.store.Upsert(res.Content)

	if filter != FilterRead {
		ids := make([]int64, 0, len(merged))
		for _, n := range merged {
			ids = append(ids, n.ID)
		}
		return pageResult{ids: ids, totalItems: res.TotalElements, totalPages: res.TotalPages}, nil
	}

	// The backend has no read-only filter; totals describe this page only.
	ids := make([]int64, 0, len(merged))
	for _, n := range merged {
		if n.IsRead {
			ids = append(ids, n.ID)
		}
	}
	out := pageResult{ids: ids, totalItems: len(ids)}
	if len(ids) > 0 {
		out.totalPages = (len(ids) + size - 1) / size
	}
	return out, nil
}

// ChangeFilter switches to f on its first page. The filter and page change
// only once that page has loaded.
func (p *Pager) ChangeFilter(ctx context.Context, f Filter) {
	p.load(ctx, f, 0)
}

func (p *Pager) NextPage(ctx context.Context) {
	p.mu.Lock()
	if !p.hasNextLocked() {
		p.mu.Unlock()
		return
	}
	filter, next := p.filter, p.page+1
	p.mu.Unlock()
	p.load(ctx, filter, next)
}

func (p *Pager) PreviousPage(ctx context.Context) {
	p.mu.Lock()
	if p.page == 0 {
		p.mu.Unlock()
		return
	}
	filter, prev := p.filter, p.page-1
	p.mu.Unlock()
	p.load(ctx, filter, prev)
}

// GoToPage jumps to page n (0-based); out of range values are ignored.
func (p *Pager) GoToPage(ctx context.Context, n int) {
	p.mu.Lock()
	if n < 0 || n >= p.totalPages || n == p.page {
		p.mu.Unlock()
		return
	}
	filter := p.filter
	p.mu.Unlock()
	p.load(ctx, filter, n)
}

func (p *Pager) hasNextLocked() bool { return p.page < p.totalPages-1 }

func (p *Pager) HasNextPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasNextLocked()
}

func (p *Pager) HasPreviousPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page > 0
}

// Items resolves the current page against the store, so read-state changes
// made through the live client show up here too.
func (p *Pager) Items() []model.Notification {
	p.mu.Lock()
	ids := append([]int64(nil), p.ids...)
	p.mu.Unlock()
	return p.store.Lookup(ids)
}

func (p *Pager) View() PageView {
	p.mu.Lock()
	v := PageView{
		Filter:          p.filter,
		CurrentPage:     p.page,
		PageSize:        p.pageSize,
		TotalPages:      p.totalPages,
		TotalItems:      p.totalItems,
		HasNextPage:     p.hasNextLocked(),
		HasPreviousPage: p.page > 0,
		Loading:         p.loading,
		Error:           p.errMsg,
	}
	ids := append([]int64(nil), p.ids...)
	p.mu.Unlock()

	v.Items = p.store.Lookup(ids)
	v.Stats = p.store.Stats()
	return v
}

func (p *Pager) Error() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errMsg
}

func (p *Pager) ClearError() {
	p.mu.Lock()
	p.errMsg = ""
	p.mu.Unlock()
	p.store.notify()
}

func (p *Pager) IsMarking(id int64) bool { return p.store.IsMarking(id) }

// MarkAsRead marks id read through the shared store, then refreshes the
// counters from the backend.
func (p *Pager) MarkAsRead(ctx context.Context, id int64) error {
	if err := p.actions.markAsRead(ctx, id); err != nil {
		return err
	}
	p.refreshStats(ctx)
	return nil
}

func (p *Pager) MarkAllAsRead(ctx context.Context) error {
	if err := p.actions.markAllAsRead(ctx); err != nil {
		return err
	}
	p.refreshStats(ctx)
	return nil
}

func (p *Pager) refreshStats(ctx context.Context) {
	stats, err := p.api.Stats(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to refresh notification stats")
		p.mu.Lock()
		p.errMsg = errStatsFailed
		p.mu.Unlock()
		p.store.notify()
		return
	}
	p.store.SetStats(*stats)
	p.mu.Lock()
	if p.errMsg == errStatsFailed {
		p.errMsg = ""
	}
	p.mu.Unlock()
}
