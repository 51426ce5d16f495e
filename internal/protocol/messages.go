package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies server-to-client frame variants on the duplex
// stream. Client audio arrives as raw binary frames and carries no envelope.
type MessageType string

const (
	TypeSessionStarted MessageType = "session_started"
	TypeTranscriptAck  MessageType = "transcript_ack"
	TypeTimeoutWarning MessageType = "timeout_warning"
	TypeSessionEnded   MessageType = "session_ended"
	TypeError          MessageType = "error"
)

// Control actions accepted while a session is active.
const (
	ActionTranscript = "transcript"
	ActionEnd        = "end"
)

// Fixed audio format announced in the session_started frame.
const (
	SampleRate = 24000
	Encoding   = "pcm_s16le"
)

var (
	ErrUnknownAction = errors.New("unknown control action")
)

// SessionConfig is the first frame a client must send after connecting:
// authentication token plus persona selector.
type SessionConfig struct {
	APIKey  string `json:"api_key"`
	Persona string `json:"persona"`
}

// Control is a client control frame routed by its action.
type Control struct {
	Action  string `json:"action"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`
}

// SessionStarted acknowledges a successful handshake.
type SessionStarted struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Persona    string      `json:"persona"`
	SampleRate int         `json:"sample_rate"`
	Encoding   string      `json:"encoding"`
}

// TranscriptAck acknowledges one appended transcript turn.
type TranscriptAck struct {
	Type MessageType `json:"type"`
}

// TimeoutWarning is sent once before an idle session is closed.
type TimeoutWarning struct {
	Type MessageType `json:"type"`
}

// SessionEnded carries the terminal summary; Summary is nil when the session
// was already gone by the time the connection unwound.
type SessionEnded struct {
	Type    MessageType `json:"type"`
	Summary any         `json:"summary"`
}

// ErrorFrame reports a terminal handshake or session fault to the client.
type ErrorFrame struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// ParseSessionConfig decodes the initial configuration frame.
func ParseSessionConfig(raw []byte) (SessionConfig, error) {
	var cfg SessionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return SessionConfig{}, fmt.Errorf("invalid session config: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Persona = strings.TrimSpace(cfg.Persona)
	if cfg.Persona == "" {
		cfg.Persona = "default"
	}
	return cfg, nil
}

// ParseControl decodes an in-session text frame and validates its action.
func ParseControl(raw []byte) (Control, error) {
	var msg Control
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Control{}, fmt.Errorf("invalid control frame: %w", err)
	}
	switch msg.Action {
	case ActionTranscript:
		if msg.Speaker == "" {
			msg.Speaker = "user"
		}
		return msg, nil
	case ActionEnd:
		return msg, nil
	default:
		return Control{}, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}
}
