// Package validation holds request-boundary checks for feed input.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultContentMaxLength bounds post and comment bodies, in characters.
const DefaultContentMaxLength = 300

const maxIdempotencyKeyLength = 255

var companyDomainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)

// ValidateContentLength rejects bodies longer than max characters.
// Blank bodies are left to the services, which report EMPTY_CONTENT.
func ValidateContentLength(content string, max int) error {
	if max <= 0 {
		max = DefaultContentMaxLength
	}
	if n := utf8.RuneCountInString(content); n > max {
		return fmt.Errorf("content must be at most %d characters, got %d", max, n)
	}
	return nil
}

// NormalizeCompanyDomain lower-cases a domain path segment and checks its shape.
func NormalizeCompanyDomain(raw string) (string, error) {
	domain := strings.ToLower(strings.TrimSpace(raw))
	if len(domain) > 253 || !companyDomainRegex.MatchString(domain) {
		return "", fmt.Errorf("invalid company domain")
	}
	return domain, nil
}

// ValidateIdempotencyKey accepts up to 255 printable ASCII characters.
func ValidateIdempotencyKey(key string) error {
	if len(key) > maxIdempotencyKeyLength {
		return fmt.Errorf("idempotency key must be at most %d characters", maxIdempotencyKeyLength)
	}
	for _, r := range key {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return fmt.Errorf("idempotency key must be printable ASCII")
		}
	}
	return nil
}
