package persona

import "testing"

func TestGetFallsBackToDefault(t *testing.T) {
	p := Get("does-not-exist")
	if p.ID != DefaultID {
		t.Fatalf("Get() ID = %q, want %q", p.ID, DefaultID)
	}
	if p.SystemPrompt == "" {
		t.Fatalf("default persona has empty system prompt")
	}
}

func TestGetNormalizesID(t *testing.T) {
	p := Get("  Support ")
	if p.ID != "support" {
		t.Fatalf("Get() ID = %q, want %q", p.ID, "support")
	}
}

func TestKnown(t *testing.T) {
	if !Known("sales") {
		t.Fatalf("Known(sales) = false, want true")
	}
	if Known("ghost") {
		t.Fatalf("Known(ghost) = true, want false")
	}
}

func TestListIsACopy(t *testing.T) {
	a := List()
	a[0].Name = "mutated"
	b := List()
	if b[0].Name == "mutated" {
		t.Fatalf("List() returned shared backing array")
	}
}
