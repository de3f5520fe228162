package id

import (
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewIDsAreDistinct(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		got, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if len(got) != 26 {
			t.Fatalf("len(%q) = %d, want 26", got, len(got))
		}
		if _, dup := seen[got]; dup {
			t.Fatalf("duplicate id %q", got)
		}
		seen[got] = struct{}{}
	}
}

// Challenge ids travel in claims and actor URLs; user ids are embedded in
// colon separated guard tokens.
func TestNewIDIsSafeAsPathSegmentAndTokenPart(t *testing.T) {
	got, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if escaped := url.PathEscape(got); escaped != got {
		t.Fatalf("path escape = %q, want %q", escaped, got)
	}
	if strings.ContainsAny(got, ":/=") {
		t.Fatalf("id %q contains a separator", got)
	}
	if strings.ToLower(got) != got {
		t.Fatalf("id %q is not lowercase", got)
	}
}

func TestNewIDDecodesToRandomUUID(t *testing.T) {
	got, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	raw, err := encoding.DecodeString(strings.ToUpper(got))
	if err != nil {
		t.Fatalf("decode %q: %v", got, err)
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		t.Fatalf("uuid from bytes: %v", err)
	}
	if u.Version() != 4 {
		t.Fatalf("version = %d, want 4", u.Version())
	}
	if u.Variant() != uuid.RFC4122 {
		t.Fatalf("variant = %v, want %v", u.Variant(), uuid.RFC4122)
	}
}
