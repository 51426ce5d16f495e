package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smartflow-crm/personaplex/internal/callback"
	"github.com/smartflow-crm/personaplex/internal/model"
	"github.com/smartflow-crm/personaplex/internal/observability"
	"github.com/smartflow-crm/personaplex/internal/persona"
	"github.com/smartflow-crm/personaplex/internal/policy"
	"github.com/smartflow-crm/personaplex/internal/protocol"
	"github.com/smartflow-crm/personaplex/internal/session"
)

// Conn is the duplex transport the engine drives. *websocket.Conn satisfies
// it; tests substitute an in-process fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v any) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// End reasons recorded on the terminal summary.
const (
	ReasonClientEnd   = "client_end"
	ReasonIdleTimeout = "idle_timeout"
	ReasonDisconnect  = "connection_closed"
)

// Options fixes the protocol limits for every connection the engine serves.
type Options struct {
	HandshakeTimeout   time.Duration
	IdleTimeout        time.Duration
	MaxAudioChunkBytes int
	NotifyOnIdle       bool
}

// Engine runs the realtime session protocol over one connection at a time:
// handshake, active duplex streaming, teardown. All session state lives in
// the managers it is wired to; the engine itself is stateless.
type Engine struct {
	gate     *policy.KeyGate
	sessions *session.Manager
	model    model.Engine
	notifier *callback.Notifier
	metrics  *observability.Metrics
	window   *observability.LatencyWindow
	opts     Options
}

func New(gate *policy.KeyGate, sessions *session.Manager, mdl model.Engine, notifier *callback.Notifier, m *observability.Metrics, w *observability.LatencyWindow, opts Options) *Engine {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.MaxAudioChunkBytes <= 0 {
		opts.MaxAudioChunkBytes = 32000
	}
	return &Engine{
		gate:     gate,
		sessions: sessions,
		model:    mdl,
		notifier: notifier,
		metrics:  m,
		window:   w,
		opts:     opts,
	}
}

// Run serves one connection to completion. It always closes the connection
// and always ends the session it admitted, no matter how the loop exits,
// including a panic from the model or a handler.
func (e *Engine) Run(ctx context.Context, conn Conn) error {
	defer conn.Close()

	sess, err := e.handshake(conn)
	if err != nil {
		return err
	}

	e.gaugeSessions()
	e.countEvent("created")

	reason := ReasonDisconnect
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session %s: recovered from panic: %v", sess.ID, r)
		}
		e.finish(ctx, conn, sess.ID, reason)
	}()
	reason = e.serve(ctx, conn, sess.ID)
	return nil
}

// handshake reads and validates the configuration frame within the handshake
// window, then admits the session and acknowledges it.
func (e *Engine) handshake(conn Conn) (*session.Session, error) {
	start := time.Now()
	_ = conn.SetReadDeadline(start.Add(e.opts.HandshakeTimeout))

	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read config frame: %w", err)
	}
	if msgType != websocket.TextMessage {
		e.reject(conn, "expected configuration frame")
		return nil, errors.New("first frame was not text")
	}

	cfg, err := protocol.ParseSessionConfig(raw)
	if err != nil {
		e.reject(conn, "invalid configuration frame")
		return nil, err
	}
	if e.gate != nil && !e.gate.Allow(cfg.APIKey) {
		e.reject(conn, "invalid api key")
		return nil, errors.New("api key rejected")
	}

	p := persona.Get(cfg.Persona)
	sess, err := e.sessions.Create(p.ID)
	if err != nil {
		if errors.Is(err, session.ErrCapacity) {
			e.reject(conn, "server at capacity")
			e.countEvent("rejected_capacity")
		}
		return nil, err
	}

	if err := conn.WriteJSON(protocol.SessionStarted{
		Type:       protocol.TypeSessionStarted,
		SessionID:  sess.ID,
		Persona:    sess.Persona,
		SampleRate: protocol.SampleRate,
		Encoding:   protocol.Encoding,
	}); err != nil {
		_, _ = e.sessions.End(sess.ID)
		return nil, fmt.Errorf("write session_started: %w", err)
	}

	if e.window != nil {
		e.window.Observe("handshake", float64(time.Since(start).Milliseconds()))
	}
	return sess, nil
}

// serve runs the active phase until the client ends the call, goes idle past
// the timeout, or the transport drops. Returns the end reason.
func (e *Engine) serve(ctx context.Context, conn Conn, sessionID string) string {
	for {
		if ctx.Err() != nil {
			return ReasonDisconnect
		}
		_ = conn.SetReadDeadline(time.Now().Add(e.opts.IdleTimeout))

		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				_ = conn.WriteJSON(protocol.TimeoutWarning{Type: protocol.TypeTimeoutWarning})
				return ReasonIdleTimeout
			}
			return ReasonDisconnect
		}

		switch msgType {
		case websocket.BinaryMessage:
			e.handleAudio(ctx, conn, sessionID, raw)
		case websocket.TextMessage:
			if done := e.handleControl(conn, sessionID, raw); done {
				return ReasonClientEnd
			}
		}
	}
}

// handleAudio feeds one inbound chunk through the model. Oversized chunks are
// dropped without touching session state.
func (e *Engine) handleAudio(ctx context.Context, conn Conn, sessionID string, chunk []byte) {
	if len(chunk) > e.opts.MaxAudioChunkBytes {
		e.window.ObserveIndicator("oversized_chunk_dropped")
		if e.metrics != nil {
			e.metrics.WSMessages.WithLabelValues("in", "audio_dropped").Inc()
		}
		return
	}

	if err := e.sessions.RecordAudioIn(sessionID); err != nil {
		return
	}
	e.countMessage("in", "audio")

	start := time.Now()
	out, err := e.model.ProcessAudio(ctx, chunk, sessionID)
	if err != nil || len(out) == 0 {
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
		return
	}
	_ = e.sessions.RecordAudioOut(sessionID)
	e.countMessage("out", "audio")
	if e.window != nil {
		e.window.Observe("audio_roundtrip", float64(time.Since(start).Milliseconds()))
	}
}

// handleControl routes one text frame. Returns true when the client asked to
// end the call.
func (e *Engine) handleControl(conn Conn, sessionID string, raw []byte) bool {
	e.countMessage("in", "control")

	msg, err := protocol.ParseControl(raw)
	if err != nil {
		_ = conn.WriteJSON(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		return false
	}

	switch msg.Action {
	case protocol.ActionTranscript:
		if err := e.sessions.AppendTurn(sessionID, msg.Speaker, msg.Text); err != nil {
			return true
		}
		_ = conn.WriteJSON(protocol.TranscriptAck{Type: protocol.TypeTranscriptAck})
		e.countMessage("out", "transcript_ack")
		return false
	case protocol.ActionEnd:
		return true
	}
	return false
}

// finish ends the session exactly once, sends the terminal frame best-effort
// and hands the summary to the notifier.
func (e *Engine) finish(ctx context.Context, conn Conn, sessionID, reason string) {
	summary, err := e.sessions.End(sessionID)
	if err != nil {
		// Already gone, nothing left to report.
		return
	}

	e.gaugeSessions()
	e.countEvent(reason)

	_ = conn.WriteJSON(protocol.SessionEnded{Type: protocol.TypeSessionEnded, Summary: summary})

	if e.notifier == nil {
		return
	}
	switch reason {
	case ReasonClientEnd:
		e.notifier.CallEnded(ctx, *summary, reason)
	case ReasonIdleTimeout:
		if e.opts.NotifyOnIdle {
			e.notifier.CallEnded(ctx, *summary, reason)
		}
	}
}

func (e *Engine) reject(conn Conn, message string) {
	_ = conn.WriteJSON(protocol.ErrorFrame{Type: protocol.TypeError, Message: message})
}

func (e *Engine) gaugeSessions() {
	if e.metrics != nil {
		e.metrics.ActiveSessions.Set(float64(e.sessions.ActiveCount()))
	}
}

func (e *Engine) countEvent(event string) {
	if e.metrics != nil {
		e.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (e *Engine) countMessage(direction, typ string) {
	if e.metrics != nil {
		e.metrics.WSMessages.WithLabelValues(direction, typ).Inc()
	}
}
