package archive

import (
	"context"
	"time"
)

// SummaryRecord is the terminal record of one finished call.
type SummaryRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Persona         string    `json:"persona"`
	Reason          string    `json:"reason"`
	DurationSeconds float64   `json:"duration_seconds"`
	TurnCount       int       `json:"turn_count"`
	TranscriptJSON  string    `json:"transcript_json"`
	IntentSummary   string    `json:"intent_summary"`
	EndedAt         time.Time `json:"ended_at"`
}

// Store persists finished-call summaries. Live session state never touches
// the archive; it only receives terminal records.
type Store interface {
	SaveSummary(ctx context.Context, record SummaryRecord) error
	RecentSummaries(ctx context.Context, limit int) ([]SummaryRecord, error)
	Close() error
}
