package token

import (
	"strings"
	"testing"
)

func TestHasher_Modes(t *testing.T) {
	plain := NewHasher("   ")
	if plain.Keyed() {
		t.Fatalf("blank key should select SHA-256 mode")
	}
	if got, want := plain.Hex("203.0.113.7"), HashSHA256Hex("203.0.113.7"); got != want {
		t.Fatalf("got %s want %s", got, want)
	}

	keyed := NewHasher(strings.Repeat("k", 32))
	if !keyed.Keyed() {
		t.Fatalf("expected keyed mode")
	}
	if keyed.Hex("x") == plain.Hex("x") {
		t.Fatalf("keyed digest must differ from plain digest")
	}
	if len(keyed.Hex("x")) != 64 {
		t.Fatalf("expected 64 hex chars")
	}
}

func TestNewStrictHasher(t *testing.T) {
	if _, err := NewStrictHasher(""); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}
	if _, err := NewStrictHasher("short"); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
	if _, err := NewStrictHasher(strings.Repeat("a", MinKeyBytes)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
