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

func TestRedactPIIMainlandFormats(t *testing.T) {
	out, changed := RedactPII("call 13812345678, id 11010519491231002X")
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if strings.Contains(out, "13812345678") || strings.Contains(out, "11010519491231002X") {
		t.Fatalf("output kept digits: %q", out)
	}
	if !strings.Contains(out, "[REDACTED_ID]") {
		t.Fatalf("output missing id marker: %q", out)
	}
}

func TestRedactPIILeavesPlainText(t *testing.T) {
	in := "Hello, how are you today?"
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v; want unchanged", in, out, changed)
	}
}
