package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewULID_OrderAndTimestamp(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	prev := ""
	for i := 0; i < 50; i++ {
		id, err := NewULID(t0)
		if err != nil {
			t.Fatalf("NewULID: %v", err)
		}
		if !IsULID(id) {
			t.Fatalf("not a ulid: %q", id)
		}
		if id <= prev {
			t.Fatalf("ids within one millisecond out of order: %q <= %q", id, prev)
		}
		prev = id
	}

	later, err := NewULID(t0.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	if later <= prev {
		t.Fatalf("later id %q should sort after %q", later, prev)
	}

	parsed, err := ulid.Parse(later)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := ulid.Time(parsed.Time()); !got.Equal(t0.Add(time.Millisecond)) {
		t.Fatalf("timestamp=%v", got)
	}
}

func TestIsULID(t *testing.T) {
	if IsULID("") || IsULID("not-a-ulid") {
		t.Fatalf("garbage accepted")
	}
}

func TestNewOpaque(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := NewOpaque(32)
		if err != nil {
			t.Fatalf("NewOpaque: %v", err)
		}
		if len(s) != 43 || seen[s] {
			t.Fatalf("bad or duplicate id %q", s)
		}
		seen[s] = true
	}

	s, err := NewOpaque(0)
	if err != nil {
		t.Fatalf("NewOpaque(0): %v", err)
	}
	if len(s) != 43 {
		t.Fatalf("default size gave %d chars", len(s))
	}
}
