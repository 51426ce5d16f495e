package callback

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/smartflow-crm/personaplex/internal/archive"
	"github.com/smartflow-crm/personaplex/internal/ctxstore"
	"github.com/smartflow-crm/personaplex/internal/observability"
	"github.com/smartflow-crm/personaplex/internal/session"
)

// Notifier owns everything that happens after a call ends: webhook delivery,
// summary archival, and the delayed purge of the session's injected context.
// All of it is fire-and-forget; the connection that ended the call never
// waits on any of it.
type Notifier struct {
	dispatcher *Dispatcher
	store      *ctxstore.Store
	archive    archive.Store
	metrics    *observability.Metrics
	window     *observability.LatencyWindow
	retention  time.Duration
}

func NewNotifier(d *Dispatcher, store *ctxstore.Store, arch archive.Store, m *observability.Metrics, w *observability.LatencyWindow, retention time.Duration) *Notifier {
	if retention <= 0 {
		retention = 30 * time.Second
	}
	return &Notifier{
		dispatcher: d,
		store:      store,
		archive:    arch,
		metrics:    m,
		window:     w,
		retention:  retention,
	}
}

// CallEnded reports a session that ended through the realtime protocol.
func (n *Notifier) CallEnded(ctx context.Context, summary session.Summary, reason string) {
	p := Payload{
		SessionID:       summary.SessionID,
		Event:           "call_end",
		Reason:          reason,
		Persona:         summary.Persona,
		DurationSeconds: summary.DurationSeconds,
		TurnCount:       summary.TurnCount,
		Transcript:      summary.Transcript,
		ContextUsed:     n.store.TypesAccessed(summary.SessionID),
		Timestamp:       time.Now().UTC(),
	}
	n.archiveSummary(ctx, summary, reason)
	n.dispatch(ctx, p)
	n.scheduleCleanup(summary.SessionID)
}

// EventReceived handles a lifecycle event injected over HTTP. Only call_end
// triggers delivery and cleanup; every event is recorded either way. The
// event's data may carry transcript and intent_summary from the automation
// side, which are forwarded on the callback and archived.
func (n *Notifier) EventReceived(ctx context.Context, sessionID string, evt ctxstore.Event) {
	if evt.Name != "call_end" {
		return
	}
	transcript := transcriptFromData(evt.Data)
	intentSummary := stringFromData(evt.Data, "intent_summary")
	p := Payload{
		SessionID:       sessionID,
		Event:           evt.Name,
		Reason:          "call_end_event",
		DurationSeconds: n.durationFromEvents(sessionID, evt),
		TurnCount:       len(transcript),
		Transcript:      transcript,
		IntentSummary:   intentSummary,
		ContextUsed:     n.store.TypesAccessed(sessionID),
		CustomerPhone:   evt.CustomerPhone,
		CustomerName:    evt.CustomerName,
		Timestamp:       time.Now().UTC(),
	}
	n.archiveRecord(ctx, archive.SummaryRecord{
		SessionID:       sessionID,
		Reason:          "call_end_event",
		DurationSeconds: p.DurationSeconds,
		TurnCount:       len(transcript),
		TranscriptJSON:  marshalTranscript(transcript),
		IntentSummary:   intentSummary,
		EndedAt:         time.Now().UTC(),
	})
	n.dispatch(ctx, p)
	n.scheduleCleanup(sessionID)
}

// durationFromEvents derives call duration from the call_start event when one
// was recorded. Zero when there is nothing to measure against.
func (n *Notifier) durationFromEvents(sessionID string, end ctxstore.Event) float64 {
	endAt := end.Timestamp
	if endAt.IsZero() {
		endAt = time.Now().UTC()
	}
	for _, evt := range n.store.Events(sessionID) {
		if evt.Name == "call_start" && !evt.Timestamp.IsZero() {
			d := endAt.Sub(evt.Timestamp).Seconds()
			if d > 0 {
				return d
			}
			return 0
		}
	}
	return 0
}

func (n *Notifier) dispatch(ctx context.Context, p Payload) {
	if n.dispatcher == nil || !n.dispatcher.Configured() {
		return
	}
	go func() {
		start := time.Now()
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := n.dispatcher.Deliver(deliverCtx, p); err != nil {
			log.Printf("callback delivery failed for session %s: %v", p.SessionID, err)
			n.observe("failure", start)
			return
		}
		n.observe("success", start)
	}()
}

func (n *Notifier) observe(status string, start time.Time) {
	if n.metrics != nil {
		n.metrics.CallbackDeliveries.WithLabelValues(status).Inc()
	}
	if n.window != nil {
		n.window.Observe("callback_delivery", float64(time.Since(start).Milliseconds()))
		if status != "success" {
			n.window.ObserveIndicator("callback_failed")
		}
	}
}

func (n *Notifier) archiveSummary(ctx context.Context, summary session.Summary, reason string) {
	n.archiveRecord(ctx, archive.SummaryRecord{
		SessionID:       summary.SessionID,
		Persona:         summary.Persona,
		Reason:          reason,
		DurationSeconds: summary.DurationSeconds,
		TurnCount:       summary.TurnCount,
		TranscriptJSON:  marshalTranscript(summary.Transcript),
		EndedAt:         time.Now().UTC(),
	})
}

func (n *Notifier) archiveRecord(ctx context.Context, rec archive.SummaryRecord) {
	if n.archive == nil {
		return
	}
	if err := n.archive.SaveSummary(ctx, rec); err != nil {
		log.Printf("archive summary failed for session %s: %v", rec.SessionID, err)
	}
}

// scheduleCleanup purges the session's context after the retention grace so
// that a late follow-up automation can still read it. The timer must outlive
// the request that triggered it, so it is never tied to a caller context.
func (n *Notifier) scheduleCleanup(sessionID string) {
	timer := time.NewTimer(n.retention)
	go func() {
		defer timer.Stop()
		<-timer.C
		removed := n.store.Delete(sessionID)
		if n.metrics != nil && removed > 0 {
			n.metrics.SweepRemoved.WithLabelValues("context_retention").Add(float64(removed))
		}
	}()
}

func marshalTranscript(transcript []session.TranscriptTurn) string {
	raw, err := json.Marshal(transcript)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// transcriptFromData decodes a transcript list carried inside event data.
func transcriptFromData(data map[string]any) []session.TranscriptTurn {
	raw, ok := data["transcript"]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []session.TranscriptTurn
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil
	}
	return out
}

func stringFromData(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
