package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smartflow-crm/personaplex/internal/session"
)

// Payload is the end-of-call report posted to the configured automation
// webhook.
type Payload struct {
	SessionID       string                   `json:"session_id"`
	Event           string                   `json:"event"`
	Reason          string                   `json:"reason"`
	Persona         string                   `json:"persona,omitempty"`
	DurationSeconds float64                  `json:"duration_seconds"`
	TurnCount       int                      `json:"turn_count"`
	Transcript      []session.TranscriptTurn `json:"transcript,omitempty"`
	IntentSummary   string                   `json:"intent_summary,omitempty"`
	ContextUsed     []string                 `json:"context_used,omitempty"`
	CustomerPhone   string                   `json:"customer_phone,omitempty"`
	CustomerName    string                   `json:"customer_name,omitempty"`
	Timestamp       time.Time                `json:"timestamp"`
}

// Dispatcher posts end-of-call payloads to an external automation endpoint.
// An empty endpoint disables delivery.
type Dispatcher struct {
	endpoint string
	client   *http.Client
}

func NewDispatcher(baseURL, path string) *Dispatcher {
	endpoint := strings.TrimSpace(baseURL)
	if endpoint != "" && path != "" {
		endpoint = strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return &Dispatcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (d *Dispatcher) Configured() bool {
	return d.endpoint != ""
}

// Endpoint returns the resolved delivery URL, empty when disabled.
func (d *Dispatcher) Endpoint() string {
	return d.endpoint
}

// Deliver posts the payload once. Callers treat failures as log-and-continue;
// a lost callback never affects the call that produced it.
func (d *Dispatcher) Deliver(ctx context.Context, p Payload) error {
	if !d.Configured() {
		return nil
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback endpoint returned %d", resp.StatusCode)
	}
	return nil
}
