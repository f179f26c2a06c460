package notification

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ginsse "github.com/gin-contrib/sse"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/brewery-notify/internal/model"
)

var errBackend = errors.New("backend exploded")

type listCall struct {
	page, size int
	unreadOnly bool
}

type fakeAPI struct {
	mu       sync.Mutex
	list     func(call listCall) (*model.NotificationPage, error)
	calls    []listCall
	stats    model.NotificationStats
	statsErr error
	markErr  error
	// markGate, when set, blocks mark calls until it is closed.
	markGate chan struct{}

	markCalls    int32
	markAllCalls int32
	statsCalls   int32
}

func (f *fakeAPI) ListNotifications(_ context.Context, page, size int, unreadOnly bool) (*model.NotificationPage, error) {
	call := listCall{page, size, unreadOnly}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	list := f.list
	f.mu.Unlock()
	if list == nil {
		return &model.NotificationPage{Size: size, Number: page}, nil
	}
	return list(call)
}

func (f *fakeAPI) Stats(context.Context) (*model.NotificationStats, error) {
	atomic.AddInt32(&f.statsCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	s := f.stats
	return &s, nil
}

func (f *fakeAPI) MarkAsRead(_ context.Context, id int64) (*model.Notification, error) {
	atomic.AddInt32(&f.markCalls, 1)
	if f.markGate != nil {
		<-f.markGate
	}
	if f.markErr != nil {
		return nil, f.markErr
	}
	readAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Notification{ID: id, Type: model.NotificationLowStockAlert, Message: "server copy", IsRead: true, ReadAt: &readAt}, nil
}

func (f *fakeAPI) MarkAllAsRead(context.Context) error {
	atomic.AddInt32(&f.markAllCalls, 1)
	if f.markGate != nil {
		<-f.markGate
	}
	return f.markErr
}

func (f *fakeAPI) listCalls() []listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]listCall(nil), f.calls...)
}

// fakeTransport hands out in-memory pipes; tests write frames to the
// writer side.
type fakeTransport struct {
	mu      sync.Mutex
	err     error
	opens   int
	streams chan *io.PipeWriter
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{streams: make(chan *io.PipeWriter, 16)}
}

func (t *fakeTransport) Open(ctx context.Context) (io.ReadCloser, error) {
	t.mu.Lock()
	t.opens++
	err := t.err
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	t.streams <- pw
	return pr, nil
}

func (t *fakeTransport) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) next(tb testing.TB) *io.PipeWriter {
	tb.Helper()
	select {
	case pw := <-t.streams:
		return pw
	case <-time.After(2 * time.Second):
		tb.Fatal("stream was never opened")
		return nil
	}
}

func sendEvent(tb testing.TB, w io.Writer, name string, data interface{}) {
	tb.Helper()
	require.NoError(tb, ginsse.Encode(w, ginsse.Event{Event: name, Data: data}))
}

func unread(id int64, msg string) model.Notification {
	return model.Notification{
		ID:        id,
		Type:      model.NotificationProductionOrderPending,
		Message:   msg,
		CreatedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}
}

func pageOf(items ...model.Notification) func(listCall) (*model.NotificationPage, error) {
	return func(call listCall) (*model.NotificationPage, error) {
		return &model.NotificationPage{Content: items, TotalElements: len(items), TotalPages: 1, Size: call.size}, nil
	}
}
