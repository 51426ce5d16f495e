package protocol

import (
	"errors"
	"testing"
)

func TestParseSessionConfigDefaultsPersona(t *testing.T) {
	cfg, err := ParseSessionConfig([]byte(`{"api_key":"k1"}`))
	if err != nil {
		t.Fatalf("ParseSessionConfig() error = %v", err)
	}
	if cfg.APIKey != "k1" {
		t.Fatalf("APIKey = %q, want %q", cfg.APIKey, "k1")
	}
	if cfg.Persona != "default" {
		t.Fatalf("Persona = %q, want %q", cfg.Persona, "default")
	}
}

func TestParseSessionConfigTrimsFields(t *testing.T) {
	cfg, err := ParseSessionConfig([]byte(`{"api_key":" k1 ","persona":" support "}`))
	if err != nil {
		t.Fatalf("ParseSessionConfig() error = %v", err)
	}
	if cfg.APIKey != "k1" || cfg.Persona != "support" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseSessionConfigRejectsGarbage(t *testing.T) {
	if _, err := ParseSessionConfig([]byte(`not json`)); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseControlTranscript(t *testing.T) {
	msg, err := ParseControl([]byte(`{"action":"transcript","speaker":"assistant","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseControl() error = %v", err)
	}
	if msg.Speaker != "assistant" || msg.Text != "hello" {
		t.Fatalf("unexpected control: %+v", msg)
	}
}

func TestParseControlTranscriptDefaultsSpeaker(t *testing.T) {
	msg, err := ParseControl([]byte(`{"action":"transcript","text":"hi"}`))
	if err != nil {
		t.Fatalf("ParseControl() error = %v", err)
	}
	if msg.Speaker != "user" {
		t.Fatalf("Speaker = %q, want %q", msg.Speaker, "user")
	}
}

func TestParseControlEnd(t *testing.T) {
	msg, err := ParseControl([]byte(`{"action":"end"}`))
	if err != nil {
		t.Fatalf("ParseControl() error = %v", err)
	}
	if msg.Action != ActionEnd {
		t.Fatalf("Action = %q, want %q", msg.Action, ActionEnd)
	}
}

func TestParseControlRejectsUnknownAction(t *testing.T) {
	_, err := ParseControl([]byte(`{"action":"dance"}`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("error = %v, want ErrUnknownAction", err)
	}
}

func BenchmarkParseControlTranscript(b *testing.B) {
	raw := []byte(`{"action":"transcript","speaker":"user","text":"I would like to reschedule my appointment"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseControl(raw); err != nil {
			b.Fatalf("ParseControl() error = %v", err)
		}
	}
}
