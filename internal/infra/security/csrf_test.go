package security

import (
	"strings"
	"testing"
)

func TestGenerateCSRFTokenFormat(t *testing.T) {
	token, err := GenerateCSRFToken()
	if err != nil {
		t.Fatalf("generate csrf token: %v", err)
	}
	if !ValidCSRFFormat(token) {
		t.Fatalf("generated token %q fails its own format check", token)
	}
}

func TestValidCSRFFormat(t *testing.T) {
	valid := strings.Repeat("a1", 32)

	cases := []struct {
		name  string
		value string
		want  bool
	}{
		{"valid lowercase hex", valid, true},
		{"too short by one", valid[:63], false},
		{"too long by one", valid + "a", false},
		{"empty", "", false},
		{"uppercase hex rejected", strings.Repeat("A1", 32), false},
		{"non-hex character", strings.Repeat("g", 64), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidCSRFFormat(tc.value); got != tc.want {
				t.Fatalf("ValidCSRFFormat(%q) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}

func TestCSRFTokensMatch(t *testing.T) {
	token := strings.Repeat("0f", 32)
	other := strings.Repeat("f0", 32)

	if !CSRFTokensMatch(token, token) {
		t.Fatalf("equal well-formed tokens must match")
	}
	if CSRFTokensMatch(token, other) {
		t.Fatalf("different tokens must not match")
	}

	// Malformed values fail the format gate before any comparison.
	short := token[:63]
	if CSRFTokensMatch(short, short) {
		t.Fatalf("63-char tokens must be rejected even when equal")
	}
	if CSRFTokensMatch("", "") {
		t.Fatalf("empty pair must be rejected")
	}
}
