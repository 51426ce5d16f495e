package ctxstore

import (
	"time"
)

// Priority orders context entries when a session's context is read back.
// The ordering is total: urgent before high before normal.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// NormalizePriority maps free-form input onto a known priority, defaulting to
// normal, so a bad webhook payload never fails an injection.
func NormalizePriority(s string) Priority {
	switch Priority(s) {
	case PriorityUrgent, PriorityHigh, PriorityNormal:
		return Priority(s)
	default:
		return PriorityNormal
	}
}

func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

// Entry is one externally injected fact attached to a session. Values
// returned from the store are snapshots; TTLRemaining is computed at read
// time.
type Entry struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"-"`
	Type          string         `json:"type"`
	Data          map[string]any `json:"data"`
	Priority      Priority       `json:"priority"`
	Source        string         `json:"source"`
	CreatedAt     time.Time      `json:"created_at"`
	TTLSeconds    float64        `json:"ttl_seconds"`
	TTLRemaining  float64        `json:"ttl_remaining"`
	AccessedCount int            `json:"accessed_count"`
}

// BulkItem is one element of a bulk injection request.
type BulkItem struct {
	Type     string         `json:"type"`
	Data     map[string]any `json:"data"`
	Priority string         `json:"priority"`
	Source   string         `json:"source"`
}

// BulkResult reports the outcome of one accepted bulk item.
type BulkResult struct {
	ContextID string `json:"context_id"`
	Type      string `json:"type"`
}

// Event is a call lifecycle marker (call_start, call_end, transfer, hold).
type Event struct {
	Name          string         `json:"event"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data,omitempty"`
	CustomerPhone string         `json:"customer_phone,omitempty"`
	CustomerName  string         `json:"customer_name,omitempty"`
	AgentID       string         `json:"agent_id,omitempty"`
}

// Stats is the store-wide observability snapshot.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	TotalEntries   int `json:"total_entries"`
	TotalEvents    int `json:"total_events"`
}
