package notification

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/brewery-notify/internal/model"
)

// pagedAPI serves total notifications, ids total..1, with odd ids read.
func pagedAPI(total int) *fakeAPI {
	all := make([]model.Notification, 0, total)
	for id := int64(total); id >= 1; id-- {
		n := unread(id, "n")
		if id%2 == 1 {
			at := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
			n.IsRead, n.ReadAt = true, &at
		}
		all = append(all, n)
	}

	return &fakeAPI{
		stats: model.NotificationStats{UnreadCount: total / 2, TotalCount: total},
		list: func(call listCall) (*model.NotificationPage, error) {
			src := all
			if call.unreadOnly {
				src = nil
				for _, n := range all {
					if !n.IsRead {
						src = append(src, n)
					}
				}
			}
			start := call.page * call.size
			end := start + call.size
			if start > len(src) {
				start = len(src)
			}
			if end > len(src) {
				end = len(src)
			}
			return &model.NotificationPage{
				Content:       src[start:end],
				TotalElements: len(src),
				TotalPages:    (len(src) + call.size - 1) / call.size,
				Number:        call.page,
				Size:          call.size,
			}, nil
		},
	}
}

func newTestPager(api *fakeAPI, store *Store) *Pager {
	return NewPager(api, PagerOptions{PageSize: 10, Logger: zerolog.Nop(), Store: store})
}

func TestPager_LoadAndNavigate(t *testing.T) {
	api := pagedAPI(25)
	p := newTestPager(api, nil)
	ctx := context.Background()

	p.Load(ctx)
	v := p.View()
	assert.Len(t, v.Items, 10)
	assert.Equal(t, 25, v.TotalItems)
	assert.Equal(t, 3, v.TotalPages)
	assert.True(t, v.HasNextPage)
	assert.False(t, v.HasPreviousPage)
	assert.Equal(t, model.NotificationStats{UnreadCount: 12, TotalCount: 25}, v.Stats)

	p.PreviousPage(ctx)
	assert.Equal(t, 0, p.View().CurrentPage)

	p.NextPage(ctx)
	p.NextPage(ctx)
	v = p.View()
	assert.Equal(t, 2, v.CurrentPage)
	assert.Len(t, v.Items, 5)
	assert.False(t, p.HasNextPage())

	p.NextPage(ctx)
	assert.Equal(t, 2, p.View().CurrentPage)

	p.GoToPage(ctx, 7)
	assert.Equal(t, 2, p.View().CurrentPage)
	p.GoToPage(ctx, 0)
	assert.Equal(t, 0, p.View().CurrentPage)

	calls := api.listCalls()
	assert.Len(t, calls, 4)
	for _, c := range calls {
		assert.False(t, c.unreadOnly)
	}
}

func TestPager_ChangeFilterResetsPage(t *testing.T) {
	api := pagedAPI(25)
	p := newTestPager(api, nil)
	ctx := context.Background()

	p.Load(ctx)
	p.NextPage(ctx)
	require.Equal(t, 1, p.View().CurrentPage)

	p.ChangeFilter(ctx, FilterUnread)
	v := p.View()
	assert.Equal(t, 0, v.CurrentPage)
	assert.Equal(t, FilterUnread, v.Filter)
	assert.Equal(t, 12, v.TotalItems)
	for _, n := range v.Items {
		assert.False(t, n.IsRead)
	}

	calls := api.listCalls()
	assert.Equal(t, listCall{page: 0, size: 10, unreadOnly: true}, calls[len(calls)-1])
}

func TestPager_ReadFilterUsesPageLocalTotals(t *testing.T) {
	p := newTestPager(pagedAPI(25), nil)

	p.ChangeFilter(context.Background(), FilterRead)
	v := p.View()
	require.Len(t, v.Items, 5)
	for _, n := range v.Items {
		assert.True(t, n.IsRead)
	}
	assert.Equal(t, 5, v.TotalItems)
	assert.Equal(t, 1, v.TotalPages)
	assert.False(t, v.HasNextPage)
}

func TestPager_LoadErrorIsReportedNotReturned(t *testing.T) {
	api := &fakeAPI{list: func(listCall) (*model.NotificationPage, error) { return nil, errBackend }}
	p := newTestPager(api, nil)

	p.Load(context.Background())
	assert.Equal(t, errLoadFailed, p.Error())
	assert.False(t, p.View().Loading)

	p.ClearError()
	assert.Empty(t, p.Error())
}

func TestPager_NavigationKeepsPageAndItemsConsistent(t *testing.T) {
	api := pagedAPI(25)
	p := newTestPager(api, nil)
	ctx := context.Background()
	p.Load(ctx)

	api.mu.Lock()
	api.statsErr = errBackend
	api.mu.Unlock()

	p.NextPage(ctx)
	v := p.View()
	assert.Equal(t, 1, v.CurrentPage)
	require.Len(t, v.Items, 10)
	assert.Equal(t, int64(15), v.Items[0].ID)
	assert.Equal(t, errStatsFailed, v.Error)

	inner := api.list
	api.mu.Lock()
	api.list = func(listCall) (*model.NotificationPage, error) { return nil, errBackend }
	api.mu.Unlock()

	p.NextPage(ctx)
	v = p.View()
	assert.Equal(t, 1, v.CurrentPage)
	require.Len(t, v.Items, 10)
	assert.Equal(t, int64(15), v.Items[0].ID)
	assert.Equal(t, errLoadFailed, v.Error)

	p.ChangeFilter(ctx, FilterUnread)
	v = p.View()
	assert.Equal(t, FilterAll, v.Filter)
	assert.Equal(t, 1, v.CurrentPage)

	api.mu.Lock()
	api.list = inner
	api.mu.Unlock()
	p.PreviousPage(ctx)
	v = p.View()
	assert.Equal(t, 0, v.CurrentPage)
	assert.Equal(t, int64(25), v.Items[0].ID)
}

func TestPager_SuccessfulLoadClearsError(t *testing.T) {
	api := pagedAPI(25)
	p := newTestPager(api, nil)
	ctx := context.Background()

	api.mu.Lock()
	api.statsErr = errBackend
	api.mu.Unlock()
	p.Load(ctx)
	assert.Equal(t, errStatsFailed, p.Error())

	api.mu.Lock()
	api.statsErr = nil
	api.mu.Unlock()
	p.Load(ctx)
	assert.Empty(t, p.Error())

	inner := api.list
	api.mu.Lock()
	api.list = func(listCall) (*model.NotificationPage, error) { return nil, errBackend }
	api.mu.Unlock()
	p.Load(ctx)
	assert.Equal(t, errLoadFailed, p.Error())

	api.mu.Lock()
	api.list = inner
	api.mu.Unlock()
	p.Load(ctx)
	assert.Empty(t, p.View().Error)
	assert.Len(t, p.Items(), 10)
}

func TestPager_DiscardsSupersededResponse(t *testing.T) {
	release := make(chan struct{})
	var first int32
	api := pagedAPI(25)
	inner := api.list
	api.list = func(call listCall) (*model.NotificationPage, error) {
		if atomic.CompareAndSwapInt32(&first, 0, 1) {
			<-release
			return &model.NotificationPage{Content: []model.Notification{unread(999, "stale")}, TotalElements: 1, TotalPages: 1}, nil
		}
		return inner(call)
	}
	p := newTestPager(api, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		p.Load(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(api.listCalls()) == 1 }, waitFor, tick)

	p.ChangeFilter(ctx, FilterUnread)
	close(release)
	<-done

	v := p.View()
	assert.Equal(t, FilterUnread, v.Filter)
	assert.Equal(t, 12, v.TotalItems)
	for _, n := range v.Items {
		assert.NotEqual(t, int64(999), n.ID)
	}
}

func TestPager_MarkAsReadSharedWithLiveFeed(t *testing.T) {
	api := pagedAPI(4)
	tr := newFakeTransport()
	c := newTestClient(t, api, tr, Options{})
	require.NoError(t, c.Refresh(context.Background()))

	p := newTestPager(api, c.Store())
	p.Load(context.Background())
	statsBefore := atomic.LoadInt32(&api.statsCalls)

	require.NoError(t, p.MarkAsRead(context.Background(), 4))

	feed := c.State().Notifications
	require.NotEmpty(t, feed)
	assert.Equal(t, int64(4), feed[0].ID)
	assert.True(t, feed[0].IsRead)
	assert.True(t, p.Items()[0].IsRead)
	assert.Equal(t, statsBefore+1, atomic.LoadInt32(&api.statsCalls))
}

func TestPager_MutationErrorsAreReturned(t *testing.T) {
	api := pagedAPI(4)
	api.markErr = errBackend
	p := newTestPager(api, nil)
	p.Load(context.Background())

	require.ErrorIs(t, p.MarkAsRead(context.Background(), 4), errBackend)
	require.ErrorIs(t, p.MarkAllAsRead(context.Background()), errBackend)
	assert.False(t, p.Items()[0].IsRead)
	assert.Equal(t, 2, p.View().Stats.UnreadCount)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	f, err = ParseFilter("read")
	require.NoError(t, err)
	assert.Equal(t, FilterRead, f)

	_, err = ParseFilter("archived")
	assert.Error(t, err)
}
