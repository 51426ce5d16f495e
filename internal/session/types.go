package session

import "time"

// TranscriptTurn is one attributed utterance inside a session transcript.
type TranscriptTurn struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session represents one live voice interaction from handshake to
// termination. Instances handed out by the Manager are clones; all mutation
// goes through Manager methods.
type Session struct {
	ID             string           `json:"session_id"`
	Persona        string           `json:"persona"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	Transcript     []TranscriptTurn `json:"transcript"`
	AudioChunksIn  int              `json:"audio_chunks_in"`
	AudioChunksOut int              `json:"audio_chunks_out"`
	Active         bool             `json:"active"`
}

// Summary is the terminal, immutable record emitted when a session ends.
type Summary struct {
	SessionID       string           `json:"session_id"`
	Persona         string           `json:"persona"`
	DurationSeconds float64          `json:"duration_seconds"`
	TurnCount       int              `json:"turn_count"`
	Transcript      []TranscriptTurn `json:"transcript"`
	AudioChunksIn   int              `json:"audio_chunks_in"`
	AudioChunksOut  int              `json:"audio_chunks_out"`
}

// Info is the observability view returned by the session list endpoint.
type Info struct {
	SessionID       string  `json:"session_id"`
	Persona         string  `json:"persona"`
	CreatedAt       string  `json:"created_at"`
	DurationSeconds float64 `json:"duration_seconds"`
	TurnCount       int     `json:"turn_count"`
	Status          string  `json:"status"`
}
