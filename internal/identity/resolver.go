package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anonfeed/internal/middleware"
	"anonfeed/internal/models"
	"anonfeed/internal/observability"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token issuer and audience for session JWTs.
const (
	TokenIssuer   = "anonfeed-api"
	TokenAudience = "anonfeed-client"
)

// Session is the result of a successful sign-in.
type Session struct {
	Token     string          `json:"token"`
	TokenID   string          `json:"-"`
	Identity  models.Identity `json:"identity"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type sessionClaims struct {
	Domain string `json:"dom"`
	jwt.RegisteredClaims
}

// Resolver issues, resolves and revokes anonymous sessions.
type Resolver struct {
	secret []byte
	ttl    time.Duration
	store  SessionStore
	now    func() time.Time
	newID  func() (string, error)
}

// NewResolver creates a Resolver signing tokens with secret. Sessions live for ttl.
func NewResolver(secret string, ttl time.Duration, store SessionStore) (*Resolver, error) {
	if secret == "" {
		return nil, errors.New("session secret not configured")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	return &Resolver{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		now:    time.Now,
		newID:  NewAnonymousID,
	}, nil
}

// SignIn derives the company domain from an already verified email, assigns a
// fresh anonymous id and registers a session for it. The email is not retained.
func (r *Resolver) SignIn(ctx context.Context, verifiedEmail string) (*Session, error) {
	domain, err := DomainFromEmail(verifiedEmail)
	if err != nil {
		return nil, err
	}
	anonID, err := r.newID()
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	id := models.Identity{AnonymousID: anonID, CompanyDomain: domain}
	now := r.now()
	expiresAt := now.Add(r.ttl)
	tokenID := uuid.NewString()

	claims := sessionClaims{
		Domain: domain,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   anonID,
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        tokenID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	if err := r.store.Put(ctx, tokenID, id, r.ttl); err != nil {
		observability.SessionsTotal.WithLabelValues("sign_in_failed").Inc()
		return nil, models.NewStorageUnavailableError(err)
	}

	observability.SessionsTotal.WithLabelValues("sign_in").Inc()
	middleware.Logger.InfoContext(middleware.WithAnonymousID(ctx, anonID), "session started",
		slog.String("company_domain", domain))

	return &Session{Token: signed, TokenID: tokenID, Identity: id, ExpiresAt: expiresAt}, nil
}

// SignOut ends the session identified by tokenID. It succeeds for unknown ids.
func (r *Resolver) SignOut(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return nil
	}
	if err := r.store.Delete(ctx, tokenID); err != nil {
		return models.NewStorageUnavailableError(err)
	}
	observability.SessionsTotal.WithLabelValues("sign_out").Inc()
	return nil
}

// Resolve returns the identity behind a bearer token together with its token id.
// Anything short of a valid, still registered session yields nil, the Anonymous state.
func (r *Resolver) Resolve(ctx context.Context, token string) (*models.Identity, string) {
	if token == "" {
		return nil, ""
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, ""
	}

	registered, ok, err := r.store.Get(ctx, claims.ID)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "session lookup failed", slog.String("error", err.Error()))
		return nil, ""
	}
	if !ok || registered.AnonymousID != claims.Subject || registered.CompanyDomain != claims.Domain {
		return nil, ""
	}
	return &registered, claims.ID
}
