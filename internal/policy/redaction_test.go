package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestForLogRedactsAndTruncates(t *testing.T) {
	out := ForLog("reach me at bear@forest.example now", 0)
	if !strings.Contains(out, "[REDACTED_EMAIL]") {
		t.Fatalf("ForLog() = %q, want redacted email", out)
	}
	if got := ForLog("abcdefgh", 3); got != "abc…" {
		t.Fatalf("ForLog(truncate) = %q, want %q", got, "abc…")
	}
	if got := ForLog("abc", 3); got != "abc" {
		t.Fatalf("ForLog(short) = %q, want %q", got, "abc")
	}
}
