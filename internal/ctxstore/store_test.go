package ctxstore

import (
	"errors"
	"testing"
	"time"
)

func TestAddAndGetIncrementsAccess(t *testing.T) {
	s := NewStore(time.Minute)
	entry, err := s.Add("s1", "invoice", map[string]any{"amount": "1240.00"}, PriorityHigh, "n8n", 0)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if entry.ID == "" {
		t.Fatalf("entry ID should not be empty")
	}
	if entry.AccessedCount != 0 {
		t.Fatalf("AccessedCount = %d on insert, want 0", entry.AccessedCount)
	}

	got := s.Get("s1", nil, false)
	if len(got) != 1 {
		t.Fatalf("Get() returned %d entries, want 1", len(got))
	}
	if got[0].AccessedCount != 1 {
		t.Fatalf("AccessedCount = %d after one read, want 1", got[0].AccessedCount)
	}
	if got[0].Data["amount"] != "1240.00" {
		t.Fatalf("Data = %v, want amount preserved", got[0].Data)
	}
}

func TestAddValidatesInput(t *testing.T) {
	s := NewStore(time.Minute)
	if _, err := s.Add("", "invoice", nil, PriorityNormal, "n8n", 0); !errors.Is(err, ErrMissingSession) {
		t.Fatalf("Add() empty session error = %v, want ErrMissingSession", err)
	}
	if _, err := s.Add("s1", " ", nil, PriorityNormal, "n8n", 0); !errors.Is(err, ErrMissingType) {
		t.Fatalf("Add() empty type error = %v, want ErrMissingType", err)
	}
}

func TestGetPriorityOrderingIsStable(t *testing.T) {
	s := NewStore(time.Minute)
	mustAdd(t, s, "s1", "invoice", PriorityHigh)
	mustAdd(t, s, "s1", "appointment", PriorityUrgent)
	mustAdd(t, s, "s1", "history", PriorityNormal)
	mustAdd(t, s, "s1", "invoice2", PriorityHigh)

	got := s.Get("s1", nil, false)
	wantOrder := []string{"appointment", "invoice", "invoice2", "history"}
	if len(got) != len(wantOrder) {
		t.Fatalf("Get() returned %d entries, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].Type != want {
			t.Fatalf("Get()[%d].Type = %q, want %q", i, got[i].Type, want)
		}
	}
}

func TestGetTypeFilter(t *testing.T) {
	s := NewStore(time.Minute)
	mustAdd(t, s, "s1", "invoice", PriorityNormal)
	mustAdd(t, s, "s1", "appointment", PriorityNormal)

	got := s.Get("s1", []string{"appointment"}, false)
	if len(got) != 1 || got[0].Type != "appointment" {
		t.Fatalf("Get(filter) = %+v, want single appointment entry", got)
	}

	// Filtered-out entries must not be counted as accessed.
	types := s.TypesAccessed("s1")
	if len(types) != 1 || types[0] != "appointment" {
		t.Fatalf("TypesAccessed() = %v, want [appointment]", types)
	}
}

func TestTTLExpiryScenario(t *testing.T) {
	s := NewStore(30 * time.Minute)
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	if _, err := s.Add("s1", "invoice", nil, PriorityHigh, "n8n", 60*time.Second); err != nil {
		t.Fatalf("Add(invoice) error = %v", err)
	}
	if _, err := s.Add("s1", "appointment", nil, PriorityUrgent, "n8n", 0); err != nil {
		t.Fatalf("Add(appointment) error = %v", err)
	}

	got := s.Get("s1", nil, false)
	if len(got) != 2 || got[0].Type != "appointment" || got[1].Type != "invoice" {
		t.Fatalf("Get() order = %v, want appointment before invoice", typesOf(got))
	}

	// 61 seconds later the invoice is past its TTL.
	s.now = func() time.Time { return base.Add(61 * time.Second) }

	got = s.Get("s1", nil, false)
	if len(got) != 1 || got[0].Type != "appointment" {
		t.Fatalf("Get() after expiry = %v, want [appointment]", typesOf(got))
	}
	all := s.Get("s1", nil, true)
	if len(all) != 2 {
		t.Fatalf("Get(include_expired) returned %d entries, want 2", len(all))
	}
}

func TestTTLRemainingIsClamped(t *testing.T) {
	s := NewStore(time.Minute)
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	mustAdd(t, s, "s1", "invoice", PriorityNormal)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	got := s.Get("s1", nil, true)
	if len(got) != 1 {
		t.Fatalf("Get() returned %d entries, want 1", len(got))
	}
	if got[0].TTLRemaining != 0 {
		t.Fatalf("TTLRemaining = %f for expired entry, want 0", got[0].TTLRemaining)
	}
}

func TestExpireSweepRemovesOnlyExpired(t *testing.T) {
	s := NewStore(30 * time.Minute)
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	if _, err := s.Add("s1", "invoice", nil, PriorityNormal, "n8n", time.Second); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	mustAdd(t, s, "s1", "appointment", PriorityNormal)
	if _, err := s.Add("s2", "history", nil, PriorityNormal, "n8n", time.Second); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	s.now = func() time.Time { return base.Add(2 * time.Second) }
	if n := s.ExpireSweep(); n != 2 {
		t.Fatalf("ExpireSweep() = %d, want 2", n)
	}

	// s2's bucket emptied out and must be garbage collected.
	st := s.Stats()
	if st.ActiveSessions != 1 || st.TotalEntries != 1 {
		t.Fatalf("Stats() = %+v, want 1 session / 1 entry", st)
	}

	// Second sweep is a no-op.
	if n := s.ExpireSweep(); n != 0 {
		t.Fatalf("second ExpireSweep() = %d, want 0", n)
	}
}

func TestAddBulkSkipsMalformedItems(t *testing.T) {
	s := NewStore(time.Minute)
	results := s.AddBulk("s1", []BulkItem{
		{Type: "invoice", Priority: "high"},
		{Type: "", Priority: "urgent"}, // malformed: missing type
		{Type: "appointment", Priority: "urgent"},
	})
	if len(results) != 2 {
		t.Fatalf("AddBulk() accepted %d items, want 2", len(results))
	}
	if results[0].Type != "invoice" || results[1].Type != "appointment" {
		t.Fatalf("AddBulk() results = %+v, want invoice then appointment", results)
	}
	if results[0].ContextID == "" || results[1].ContextID == "" {
		t.Fatalf("AddBulk() returned empty ids: %+v", results)
	}
}

func TestTypesAccessedRequiresARead(t *testing.T) {
	s := NewStore(time.Minute)
	mustAdd(t, s, "s1", "invoice", PriorityNormal)
	if types := s.TypesAccessed("s1"); len(types) != 0 {
		t.Fatalf("TypesAccessed() before any read = %v, want empty", types)
	}

	s.Get("s1", nil, false)
	if types := s.TypesAccessed("s1"); len(types) != 1 || types[0] != "invoice" {
		t.Fatalf("TypesAccessed() = %v, want [invoice]", types)
	}
}

func TestDeleteClearsEntriesAndEvents(t *testing.T) {
	s := NewStore(time.Minute)
	mustAdd(t, s, "s1", "invoice", PriorityNormal)
	mustAdd(t, s, "s1", "appointment", PriorityNormal)
	if err := s.AddEvent("s1", Event{Name: "call_start"}); err != nil {
		t.Fatalf("AddEvent() error = %v", err)
	}

	if n := s.Delete("s1"); n != 2 {
		t.Fatalf("Delete() = %d, want 2", n)
	}
	if got := s.Get("s1", nil, true); len(got) != 0 {
		t.Fatalf("Get() after Delete returned %d entries", len(got))
	}
	if evts := s.Events("s1"); len(evts) != 0 {
		t.Fatalf("Events() after Delete returned %d events", len(evts))
	}
	if n := s.Delete("s1"); n != 0 {
		t.Fatalf("Delete() on empty session = %d, want 0", n)
	}
}

func TestEventsPreserveOrder(t *testing.T) {
	s := NewStore(time.Minute)
	if err := s.AddEvent("s1", Event{Name: "call_start", CustomerName: "Jane Doe"}); err != nil {
		t.Fatalf("AddEvent() error = %v", err)
	}
	if err := s.AddEvent("s1", Event{Name: "hold"}); err != nil {
		t.Fatalf("AddEvent() error = %v", err)
	}
	if err := s.AddEvent("s1", Event{Name: "call_end"}); err != nil {
		t.Fatalf("AddEvent() error = %v", err)
	}

	evts := s.Events("s1")
	if len(evts) != 3 {
		t.Fatalf("Events() returned %d, want 3", len(evts))
	}
	if evts[0].Name != "call_start" || evts[2].Name != "call_end" {
		t.Fatalf("Events() order = %v", evts)
	}
	if evts[0].Timestamp.IsZero() {
		t.Fatalf("event timestamp not filled in")
	}
}

func TestNormalizePriority(t *testing.T) {
	if p := NormalizePriority("urgent"); p != PriorityUrgent {
		t.Fatalf("NormalizePriority(urgent) = %q", p)
	}
	if p := NormalizePriority("whenever"); p != PriorityNormal {
		t.Fatalf("NormalizePriority(unknown) = %q, want normal", p)
	}
	if p := NormalizePriority(""); p != PriorityNormal {
		t.Fatalf("NormalizePriority(empty) = %q, want normal", p)
	}
}

func mustAdd(t *testing.T, s *Store, sessionID, typ string, prio Priority) Entry {
	t.Helper()
	entry, err := s.Add(sessionID, typ, nil, prio, "n8n", 0)
	if err != nil {
		t.Fatalf("Add(%s/%s) error = %v", sessionID, typ, err)
	}
	return entry
}

func typesOf(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Type)
	}
	return out
}
