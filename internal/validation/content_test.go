package validation

import (
	"strings"
	"testing"
)

func TestValidateContentLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		max     int
		ok      bool
	}{
		{name: "short", content: "hello", max: 300, ok: true},
		{name: "exactly max", content: strings.Repeat("a", 300), max: 300, ok: true},
		{name: "one over", content: strings.Repeat("a", 301), max: 300, ok: false},
		{name: "multibyte counts characters", content: strings.Repeat("é", 300), max: 300, ok: true},
		{name: "blank is left to the service", content: "   ", max: 300, ok: true},
		{name: "zero max uses default", content: strings.Repeat("a", 301), max: 0, ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateContentLength(tc.content, tc.max)
			if tc.ok && err != nil {
				t.Fatalf("expected valid content, got error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected invalid content, got nil error")
			}
		})
	}
}

func TestNormalizeCompanyDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: "tech.com", want: "tech.com", ok: true},
		{raw: "Startup.IO", want: "startup.io", ok: true},
		{raw: "eng.corp.co.uk", want: "eng.corp.co.uk", ok: true},
		{raw: "localhost", ok: false},
		{raw: "-bad.com", ok: false},
		{raw: "bad..com", ok: false},
		{raw: "has space.com", ok: false},
		{raw: "", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeCompanyDomain(tc.raw)
			if tc.ok {
				if err != nil {
					t.Fatalf("expected valid domain, got error: %v", err)
				}
				if got != tc.want {
					t.Fatalf("expected %q, got %q", tc.want, got)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected invalid domain %q", tc.raw)
			}
		})
	}
}

func TestValidateIdempotencyKey(t *testing.T) {
	t.Parallel()

	if err := ValidateIdempotencyKey("req-2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateIdempotencyKey(strings.Repeat("k", 256)); err == nil {
		t.Fatal("expected long key to be rejected")
	}
	if err := ValidateIdempotencyKey("tab\there"); err == nil {
		t.Fatal("expected control character to be rejected")
	}
}
