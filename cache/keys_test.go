package cache

import (
	"strings"
	"testing"
	"time"
)

func TestKeyBuilder_BasicTypes(t *testing.T) {
	kb := NewKeyBuilder()

	key := kb.Key("Services", "FindByID", "abc-123")
	if key != "services::find_by_id::abc-123" {
		t.Errorf("unexpected key: %s", key)
	}

	key = kb.Key("projects", "findMany", 10, 20, true)
	if key != "projects::find_many::10::20::true" {
		t.Errorf("unexpected key: %s", key)
	}
}

func TestKeyBuilder_Deterministic(t *testing.T) {
	kb := NewKeyBuilder()
	args := []any{
		map[string]any{"published": true, "sector": "banking", "year": 2024},
		[]string{"a", "b"},
	}

	first := kb.Key("projects", "find_many", args...)
	for i := 0; i < 10; i++ {
		if got := kb.Key("projects", "find_many", args...); got != first {
			t.Fatalf("key not deterministic: %s vs %s", first, got)
		}
	}
}

func TestKeyBuilder_NilAndPointers(t *testing.T) {
	kb := NewKeyBuilder()

	if key := kb.Key("c", "m", nil); !strings.HasSuffix(key, "::nil") {
		t.Errorf("nil arg: %s", key)
	}

	s := "hello"
	if key := kb.Key("c", "m", &s); !strings.HasSuffix(key, "::hello") {
		t.Errorf("pointer arg: %s", key)
	}

	var p *string
	if key := kb.Key("c", "m", p); !strings.HasSuffix(key, "::nil") {
		t.Errorf("nil pointer arg: %s", key)
	}
}

func TestKeyBuilder_TimeIsUTC(t *testing.T) {
	kb := NewKeyBuilder()
	loc := time.FixedZone("X", 3*3600)
	instant := time.Date(2024, 5, 1, 12, 0, 0, 0, loc)

	local := kb.Key("c", "m", instant)
	utc := kb.Key("c", "m", instant.UTC())
	if local != utc {
		t.Errorf("time keys differ across zones: %s vs %s", local, utc)
	}
}

func TestKeyBuilder_Structs(t *testing.T) {
	kb := NewKeyBuilder()
	type filter struct {
		Published bool
		hidden    string
		Limit     int
	}

	key := kb.Key("c", "m", filter{Published: true, hidden: "x", Limit: 5})
	if !strings.Contains(key, "Published:true") || !strings.Contains(key, "Limit:5") {
		t.Errorf("exported fields missing: %s", key)
	}
	if strings.Contains(key, "hidden") {
		t.Errorf("unexported field leaked: %s", key)
	}
}

func TestPrefix_MatchesBuiltKeys(t *testing.T) {
	kb := NewKeyBuilder()
	key := kb.Key("ContactSubmissions", "find_by_id", "1")
	prefix := Prefix("ContactSubmissions")

	if !strings.HasPrefix(key, strings.TrimPrefix(prefix, "^")) {
		t.Errorf("prefix %q does not anchor key %q", prefix, key)
	}
}
