// Package identity turns verified emails into anonymous, company-scoped sessions.
package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"anonfeed/internal/models"
	"anonfeed/internal/validation"
)

const (
	anonymousIDLength   = 8
	anonymousIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var alphabetSize = big.NewInt(int64(len(anonymousIDAlphabet)))

// NewAnonymousID returns 8 uppercase base36 characters drawn from crypto/rand.
func NewAnonymousID() (string, error) {
	var b strings.Builder
	b.Grow(anonymousIDLength)
	for i := 0; i < anonymousIDLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("anonymous id entropy: %w", err)
		}
		b.WriteByte(anonymousIDAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// DomainFromEmail returns the lower-cased text after the last '@'. The domain must
// pass the same check as the company feed routes so every author can read their feed.
// The error never includes the input.
func DomainFromEmail(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "", models.NewInvalidEmailFormatError()
	}
	domain, err := validation.NormalizeCompanyDomain(email[at+1:])
	if err != nil {
		return "", models.NewInvalidEmailFormatError()
	}
	return domain, nil
}
