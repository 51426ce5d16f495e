package ctxstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingSession = errors.New("missing session id")
	ErrMissingType    = errors.New("missing context type")
)

// Store is the keyed, TTL-expiring, priority-ordered holding area for
// externally injected context, partitioned by session id. It also carries the
// lifecycle event log used to drive end-of-call reporting. Coarse per-store
// locking: every operation touches one session's bucket only.
type Store struct {
	mu         sync.Mutex
	entries    map[string][]*Entry
	events     map[string][]Event
	defaultTTL time.Duration

	now func() time.Time
}

func NewStore(defaultTTL time.Duration) *Store {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	return &Store{
		entries:    make(map[string][]*Entry),
		events:     make(map[string][]Event),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Add appends one entry for the session. Entries of the same type are
// additive; nothing is overwritten. A non-positive ttlOverride selects the
// store default.
func (s *Store) Add(sessionID, typ string, data map[string]any, priority Priority, source string, ttlOverride time.Duration) (Entry, error) {
	sessionID = strings.TrimSpace(sessionID)
	typ = strings.TrimSpace(typ)
	if sessionID == "" {
		return Entry{}, ErrMissingSession
	}
	if typ == "" {
		return Entry{}, ErrMissingType
	}

	ttl := ttlOverride
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e := &Entry{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Type:       typ,
		Data:       cloneData(data),
		Priority:   priority,
		Source:     source,
		CreatedAt:  s.now().UTC(),
		TTLSeconds: ttl.Seconds(),
	}
	s.entries[sessionID] = append(s.entries[sessionID], e)
	return s.snapshotLocked(e), nil
}

// AddBulk applies Add once per item in order. A malformed item is skipped;
// the remaining items still go in.
func (s *Store) AddBulk(sessionID string, items []BulkItem) []BulkResult {
	results := make([]BulkResult, 0, len(items))
	for _, item := range items {
		entry, err := s.Add(sessionID, item.Type, item.Data, NormalizePriority(item.Priority), item.Source, 0)
		if err != nil {
			continue
		}
		results = append(results, BulkResult{ContextID: entry.ID, Type: entry.Type})
	}
	return results
}

// Get returns the session's entries, filtered by types when given and
// excluding expired entries unless includeExpired is set. Every returned
// entry's access counter is incremented. Results are ordered urgent, high,
// normal with insertion order preserved inside each priority.
func (s *Store) Get(sessionID string, types []string, includeExpired bool) []Entry {
	var typeSet map[string]struct{}
	if len(types) > 0 {
		typeSet = make(map[string]struct{}, len(types))
		for _, t := range types {
			t = strings.TrimSpace(t)
			if t != "" {
				typeSet[t] = struct{}{}
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()

	var out []Entry
	for _, e := range s.entries[sessionID] {
		if !includeExpired && s.expiredAt(e, now) {
			continue
		}
		if typeSet != nil {
			if _, ok := typeSet[e.Type]; !ok {
				continue
			}
		}
		e.AccessedCount++
		out = append(out, s.snapshotAt(e, now))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.rank() < out[j].Priority.rank()
	})
	return out
}

// Delete removes all entries and events for the session and returns the
// number of entries removed. Unknown sessions yield 0.
func (s *Store) Delete(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries[sessionID])
	delete(s.entries, sessionID)
	delete(s.events, sessionID)
	return n
}

// TypesAccessed returns the distinct context types the session actually read
// (access counter > 0), sorted for stable output. Injected-but-never-read
// types do not appear.
func (s *Store) TypesAccessed(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, e := range s.entries[sessionID] {
		if e.AccessedCount > 0 {
			seen[e.Type] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ExpireSweep removes every expired entry across all sessions, dropping
// emptied buckets entirely. Returns the number of entries removed.
func (s *Store) ExpireSweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()

	cleaned := 0
	for sessionID, entries := range s.entries {
		kept := entries[:0]
		for _, e := range entries {
			if s.expiredAt(e, now) {
				cleaned++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.entries, sessionID)
			continue
		}
		s.entries[sessionID] = kept
	}
	return cleaned
}

// AddEvent appends a lifecycle event to the session's event log.
func (s *Store) AddEvent(sessionID string, evt Event) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrMissingSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.now().UTC()
	}
	evt.Data = cloneData(evt.Data)
	s.events[sessionID] = append(s.events[sessionID], evt)
	return nil
}

// Events returns the session's event log in append order.
func (s *Store) Events(sessionID string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	evts := s.events[sessionID]
	out := make([]Event, len(evts))
	copy(out, evts)
	return out
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{ActiveSessions: len(s.entries)}
	for _, entries := range s.entries {
		st.TotalEntries += len(entries)
	}
	for _, evts := range s.events {
		st.TotalEvents += len(evts)
	}
	return st
}

// StartJanitor runs the expiry sweep on a fixed interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ExpireSweep()
			}
		}
	}()
}

func (s *Store) expiredAt(e *Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt).Seconds() > e.TTLSeconds
}

func (s *Store) snapshotLocked(e *Entry) Entry {
	return s.snapshotAt(e, s.now().UTC())
}

func (s *Store) snapshotAt(e *Entry, now time.Time) Entry {
	c := *e
	c.Data = cloneData(e.Data)
	remaining := e.TTLSeconds - now.Sub(e.CreatedAt).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	c.TTLRemaining = remaining
	return c
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
