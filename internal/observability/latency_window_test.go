package observability

import "testing"

func TestLatencyWindowSnapshot(t *testing.T) {
	w := NewLatencyWindow(8)
	w.Observe("audio_roundtrip", 500)
	w.Observe("audio_roundtrip", 700)
	w.Observe("audio_roundtrip", 900)
	w.ObserveIndicator("oversized_chunk_dropped")
	w.ObserveIndicator("oversized_chunk_dropped")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "audio_roundtrip" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "audio_roundtrip")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 1400 {
		t.Fatalf("TargetP95MS = %.2f, want 1400", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Name != "oversized_chunk_dropped" {
		t.Fatalf("Indicators[0].Name = %q", snap.Indicators[0].Name)
	}
	if snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0].Count = %d, want %d", snap.Indicators[0].Count, 2)
	}
}

func TestLatencyWindowWrapsAround(t *testing.T) {
	w := NewLatencyWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe("infer_text", float64(i))
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 || snap.Stages[0].Samples != 4 {
		t.Fatalf("Snapshot() = %+v, want 4 retained samples", snap.Stages)
	}
	if snap.Stages[0].LastMS != 9 {
		t.Fatalf("LastMS = %.2f, want 9", snap.Stages[0].LastMS)
	}
}

func TestLatencyWindowIgnoresInvalidSamples(t *testing.T) {
	w := NewLatencyWindow(4)
	w.Observe("", 10)
	w.Observe("infer_text", -1)
	if snap := w.Snapshot(); len(snap.Stages) != 0 {
		t.Fatalf("Snapshot() recorded invalid samples: %+v", snap.Stages)
	}
}

func TestLatencyWindowReset(t *testing.T) {
	w := NewLatencyWindow(4)
	w.Observe("infer_text", 10)
	w.ObserveIndicator("callback_failed")
	w.Reset()
	snap := w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("Snapshot() after Reset = %+v", snap)
	}
}
