package notification

import (
	"sync"
	"time"

	"github.com/jwalitptl/brewery-notify/internal/model"
)

// Store is the single owner of notification entities and counters. The live
// feed and the paged dashboard list are both views of ids into it, so a
// read-state change made through either view shows up in both.
type Store struct {
	mu       sync.RWMutex
	entities map[int64]*model.Notification
	feed     []int64 // newest first
	stats    model.NotificationStats
	// statsGen changes on every authoritative stats replacement; rollbacks
	// skip counter adjustments that a newer snapshot has already superseded.
	statsGen uint64
	marking  map[int64]struct{}

	listenerMu   sync.Mutex
	listeners    map[uint64]func()
	nextListener uint64
}

func NewStore() *Store {
	return &Store{
		entities:  make(map[int64]*model.Notification),
		marking:   map[int64]struct{}{},
		listeners: make(map[uint64]func()),
	}
}

// Subscribe registers fn to run after every change. Callbacks run on the
// goroutine that made the change, outside the store lock.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

func (s *Store) notify() {
	s.listenerMu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Feed returns the live feed, newest first.
func (s *Store) Feed() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(s.feed)
}

func (s *Store) FeedLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.feed)
}

func (s *Store) Get(id int64) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.entities[id]
	if !ok {
		return model.Notification{}, false
	}
	return *n, true
}

// Lookup resolves ids to their current entities, skipping unknown ids.
func (s *Store) Lookup(ids []int64) []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(ids)
}

func (s *Store) lookupLocked(ids []int64) []model.Notification {
	out := make([]model.Notification, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.entities[id]; ok {
			out = append(out, *n)
		}
	}
	return out
}

func (s *Store) Stats() model.NotificationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// SetStats replaces the counters wholesale. Server snapshots always win over
// local optimistic adjustments.
func (s *Store) SetStats(stats model.NotificationStats) {
	s.mu.Lock()
	s.stats = stats
	s.statsGen++
	s.mu.Unlock()
	s.notify()
}

// ResetFeed makes list the live feed, in the given order.
func (s *Store) ResetFeed(list []model.Notification) {
	s.mu.Lock()
	s.feed = s.upsertLocked(list)
	s.mu.Unlock()
	s.notify()
}

// ApplyInitialBatch replaces the feed with batch only when the batch is
// larger than the feed already held; a smaller or equal batch would throw
// away entries that arrived via REST or individual pushes.
func (s *Store) ApplyInitialBatch(batch []model.Notification) bool {
	s.mu.Lock()
	if len(batch) <= len(s.feed) {
		s.mu.Unlock()
		return false
	}
	s.feed = s.upsertLocked(batch)
	s.mu.Unlock()
	s.notify()
	return true
}

// Prepend puts a pushed notification at the head of the feed and bumps the
// local counters. A repeated id moves to the head without counting twice.
func (s *Store) Prepend(n model.Notification) {
	s.mu.Lock()
	_, known := s.entities[n.ID]
	s.upsertLocked([]model.Notification{n})

	if known {
		for i, id := range s.feed {
			if id == n.ID {
				s.feed = append(s.feed[:i], s.feed[i+1:]...)
				break
			}
		}
	}
	s.feed = append([]int64{n.ID}, s.feed...)

	if !known {
		s.stats.TotalCount++
		if !n.IsRead {
			s.stats.UnreadCount++
		}
	}
	s.mu.Unlock()
	s.notify()
}

// Upsert merges fetched notifications into the entity set without touching
// the feed order.
func (s *Store) Upsert(list []model.Notification) []model.Notification {
	s.mu.Lock()
	ids := s.upsertLocked(list)
	out := s.lookupLocked(ids)
	s.mu.Unlock()
	s.notify()
	return out
}

// Replace overwrites a held notification with the server's copy.
func (s *Store) Replace(n model.Notification) {
	s.mu.Lock()
	if _, ok := s.entities[n.ID]; ok {
		s.upsertLocked([]model.Notification{n})
	}
	s.mu.Unlock()
	s.notify()
}

// upsertLocked stores copies of list and returns their ids in order. Read
// state never goes back from true to false through a merge.
func (s *Store) upsertLocked(list []model.Notification) []int64 {
	ids := make([]int64, 0, len(list))
	for i := range list {
		n := list[i]
		if cur, ok := s.entities[n.ID]; ok && cur.IsRead && !n.IsRead {
			n.IsRead = true
			n.ReadAt = cur.ReadAt
		}
		s.entities[n.ID] = &n
		ids = append(ids, n.ID)
	}
	return ids
}

// IsMarking reports whether a mark-as-read call for id is in flight.
func (s *Store) IsMarking(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.marking[id]
	return ok
}

// beginMarking claims id for a mark-as-read call. The set is copied on every
// change so readers never observe it mid-update.
func (s *Store) beginMarking(id int64) bool {
	s.mu.Lock()
	if _, ok := s.marking[id]; ok {
		s.mu.Unlock()
		return false
	}
	next := make(map[int64]struct{}, len(s.marking)+1)
	for k := range s.marking {
		next[k] = struct{}{}
	}
	next[id] = struct{}{}
	s.marking = next
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Store) endMarking(id int64) {
	s.mu.Lock()
	next := make(map[int64]struct{}, len(s.marking))
	for k := range s.marking {
		if k != id {
			next[k] = struct{}{}
		}
	}
	s.marking = next
	s.mu.Unlock()
	s.notify()
}

// markSnapshot records what an optimistic mark changed so it can be undone.
type markSnapshot struct {
	prev        []model.Notification
	unreadDelta int
	statsGen    uint64
}

// markReadLocal optimistically marks one notification read, decrementing the
// unread counter only if it was unread.
func (s *Store) markReadLocal(id int64, at time.Time) markSnapshot {
	s.mu.Lock()
	snap := markSnapshot{statsGen: s.statsGen}
	if n, ok := s.entities[id]; ok && !n.IsRead {
		snap.prev = append(snap.prev, *n)
		n.MarkRead(at)
		if s.stats.UnreadCount > 0 {
			s.stats.UnreadCount--
			snap.unreadDelta = 1
		}
	}
	s.mu.Unlock()
	s.notify()
	return snap
}

// markAllLocal optimistically marks every held notification read and zeroes
// the unread counter.
func (s *Store) markAllLocal(at time.Time) markSnapshot {
	s.mu.Lock()
	snap := markSnapshot{statsGen: s.statsGen, unreadDelta: s.stats.UnreadCount}
	for _, n := range s.entities {
		if !n.IsRead {
			snap.prev = append(snap.prev, *n)
			n.MarkRead(at)
		}
	}
	s.stats.UnreadCount = 0
	s.mu.Unlock()
	s.notify()
	return snap
}

// rollback undoes an optimistic mark after the backend refused it.
func (s *Store) rollback(snap markSnapshot) {
	s.mu.Lock()
	for i := range snap.prev {
		prev := snap.prev[i]
		if _, ok := s.entities[prev.ID]; ok {
			s.entities[prev.ID] = &prev
		}
	}
	if s.statsGen == snap.statsGen {
		s.stats.UnreadCount += snap.unreadDelta
	}
	s.mu.Unlock()
	s.notify()
}
