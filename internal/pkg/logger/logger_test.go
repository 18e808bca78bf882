package logger

import "testing"

func TestSanitizeKVsRedactsCredentialsAndPayloads(t *testing.T) {
	got := sanitizeKVs([]interface{}{
		"GEMINI_API_KEY", "AIza-secret",
		"image_base64", "aGVsbG8=",
		"course", "Algebra I",
		"dangling",
	})
	want := []interface{}{
		"GEMINI_API_KEY", "[REDACTED]",
		"image_base64", "[8 bytes]",
		"course", "Algebra I",
		"dangling",
	}
	if len(got) != len(want) {
		t.Fatalf("len: want=%d got=%d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: want=%v got=%v", i, want[i], got[i])
		}
	}
}

func TestSanitizeValueHashesSessionIDs(t *testing.T) {
	a := sanitizeValue("session_id", "0b5e7d7c-1f5b-4a1e-9a55-2f0f2f7f8a10")
	b := sanitizeValue("session_id", "0b5e7d7c-1f5b-4a1e-9a55-2f0f2f7f8a10")
	s, ok := a.(string)
	if !ok || len(s) != len("hash:")+12 {
		t.Fatalf("unexpected hash value: %#v", a)
	}
	if a != b {
		t.Fatalf("hash not stable: %v vs %v", a, b)
	}
}

func TestSanitizeValueNestedMap(t *testing.T) {
	out := sanitizeValue("payload", map[string]interface{}{"password": "x", "id": 7})
	m, ok := out.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", out)
	}
	if m["password"] != "[REDACTED]" || m["id"] != 7 {
		t.Fatalf("unexpected sanitized map: %v", m)
	}
}
