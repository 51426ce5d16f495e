package model

import (
	"context"
	"strings"
	"time"
)

// Result is the outcome of a turn-based classification.
type Result struct {
	Intent       string  `json:"intent"`
	Confidence   float64 `json:"confidence"`
	ResponseText string  `json:"response_text"`
	LatencyMS    float64 `json:"latency_ms"`
}

// Engine is the opaque inference capability consumed by the protocol layer.
// Implementations may be slow; callers pass a context and must not hold
// shared locks across these calls.
type Engine interface {
	// InferText classifies one utterance under a persona.
	InferText(ctx context.Context, text, personaID string) (Result, error)
	// ProcessAudio feeds one audio chunk into the streaming path and returns
	// response audio, or nil when output is produced asynchronously.
	ProcessAudio(ctx context.Context, chunk []byte, sessionID string) ([]byte, error)
	// Loaded reports whether the engine is ready to serve.
	Loaded() bool
	// Device names the inference target ("cpu", "cuda", ...).
	Device() string
}

type intentRule struct {
	intent     string
	confidence float64
	response   string
	keywords   []string
}

// KeywordEngine is the in-process stand-in for the real speech model: a
// keyword rule table for intent detection and a pass-through duplex audio
// path that produces no immediate response.
type KeywordEngine struct {
	name   string
	device string
	rules  []intentRule
}

func NewKeywordEngine(name, device string) *KeywordEngine {
	if device == "" {
		device = "cpu"
	}
	return &KeywordEngine{
		name:   name,
		device: device,
		rules: []intentRule{
			{
				intent:     "appointment",
				confidence: 0.9,
				response:   "I have your appointment request. Which date and time works for you?",
				keywords:   []string{"appointment", "schedule", "reschedule", "booking", "meeting"},
			},
			{
				intent:     "complaint",
				confidence: 0.85,
				response:   "I understand the problem you ran into. Could you share the details?",
				keywords:   []string{"complaint", "problem", "issue", "not working", "unhappy"},
			},
			{
				intent:     "info_request",
				confidence: 0.8,
				response:   "I can give you information about that.",
				keywords:   []string{"info", "information", "price", "how much", "what is"},
			},
			{
				intent:     "cancellation",
				confidence: 0.9,
				response:   "I have noted your cancellation request.",
				keywords:   []string{"cancel", "refund", "don't want", "do not want"},
			},
		},
	}
}

func (e *KeywordEngine) InferText(_ context.Context, text, _ string) (Result, error) {
	start := time.Now()
	res := Result{
		Intent:       "unknown",
		Confidence:   0.5,
		ResponseText: "I understand. How can I help you?",
	}

	lower := strings.ToLower(text)
	for _, rule := range e.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				res.Intent = rule.intent
				res.Confidence = rule.confidence
				res.ResponseText = rule.response
				break
			}
		}
		if res.Intent != "unknown" {
			break
		}
	}

	res.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	return res, nil
}

// ProcessAudio returns no immediate audio: in full-duplex mode response audio
// is produced asynchronously from input.
func (e *KeywordEngine) ProcessAudio(_ context.Context, _ []byte, _ string) ([]byte, error) {
	return nil, nil
}

func (e *KeywordEngine) Loaded() bool   { return true }
func (e *KeywordEngine) Device() string { return e.device }

// Name returns the configured model identifier.
func (e *KeywordEngine) Name() string { return e.name }
