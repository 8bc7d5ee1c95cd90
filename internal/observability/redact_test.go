package observability

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"email", "contact jane.doe@example.com today", "contact [REDACTED:email] today"},
		{"phone", "call (555) 123-4567", "call [REDACTED:phone]"},
		{"national id", "ssn 123-45-6789", "ssn [REDACTED:national_id]"},
		{"card", "card 4111 1111 1111 1111 on file", "card [REDACTED:card_number] on file"},
		{"ip", "from 10.0.0.12", "from [REDACTED:ip_address]"},
		{"clinical text untouched", "Amoxicillin 500mg TID for 7 days, 2024-03-01", "Amoxicillin 500mg TID for 7 days, 2024-03-01"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Redact(tt.in); got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactor_DetectOrdersAndSkipsOverlaps(t *testing.T) {
	r := NewRedactor("")
	matches := r.Detect("b@x.io then 4111-1111-1111-1111")
	if len(matches) != 2 {
		t.Fatalf("matches = %+v", matches)
	}
	if matches[0].Type != PIITypeEmail || matches[1].Type != PIITypeCard {
		t.Errorf("types = %s, %s", matches[0].Type, matches[1].Type)
	}
}

func TestRedactor_HashStyleIsStable(t *testing.T) {
	r := NewRedactor(MaskingStyleHash)
	a := r.Redact("mail a@b.com")
	b := r.Redact("mail a@b.com")
	if a != b {
		t.Fatalf("unstable: %q vs %q", a, b)
	}
	if strings.Contains(a, "a@b.com") || !strings.HasPrefix(a, "mail [email:") {
		t.Errorf("got %q", a)
	}
}
