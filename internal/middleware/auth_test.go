package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"anonfeed/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolverStub struct {
	resolveFn func(ctx context.Context, token string) (*models.Identity, string)
}

func (s resolverStub) Resolve(ctx context.Context, token string) (*models.Identity, string) {
	return s.resolveFn(ctx, token)
}

func knownTokenResolver() resolverStub {
	return resolverStub{resolveFn: func(_ context.Context, token string) (*models.Identity, string) {
		if token == "good" {
			return &models.Identity{AnonymousID: "ABCD1234", CompanyDomain: "acme.com"}, "jti-1"
		}
		return nil, ""
	}}
}

func TestResolveIdentity(t *testing.T) {
	app := fiber.New()
	app.Use(ResolveIdentity(knownTokenResolver()))
	handler := func(c *fiber.Ctx) error {
		anon, _ := c.UserContext().Value(AnonymousIDKey).(string)
		return c.JSON(fiber.Map{
			"state":    IdentityFrom(c).State(),
			"token_id": TokenIDFrom(c),
			"ctx_anon": anon,
		})
	}
	app.Get("/test", handler)
	app.Get("/api/ws/feed", handler)

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantState  models.IdentityState
		wantToken  string
	}{
		{name: "valid bearer", path: "/test", authHeader: "Bearer good", wantState: models.StateAuthenticated, wantToken: "jti-1"},
		{name: "lower-case scheme", path: "/test", authHeader: "bearer good", wantState: models.StateAuthenticated, wantToken: "jti-1"},
		{name: "no header", path: "/test", wantState: models.StateAnonymous},
		{name: "unknown token", path: "/test", authHeader: "Bearer bad", wantState: models.StateAnonymous},
		{name: "basic scheme", path: "/test", authHeader: "Basic dXNlcjpwYXNz", wantState: models.StateAnonymous},
		{name: "query token ignored off websocket", path: "/test?token=good", wantState: models.StateAnonymous},
		{name: "query token on websocket route", path: "/api/ws/feed?token=good", wantState: models.StateAuthenticated, wantToken: "jti-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, string(tt.wantState), body["state"])
			assert.Equal(t, tt.wantToken, body["token_id"])
			if tt.wantState == models.StateAuthenticated {
				assert.Equal(t, "ABCD1234", body["ctx_anon"])
			}
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	app := fiber.New()
	app.Use(ResolveIdentity(knownTokenResolver()))
	app.Post("/write", RequireIdentity(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/write", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, models.CodeNotAuthenticated, body.Code)

	req = httptest.NewRequest(http.MethodPost, "/write", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp2, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusCreated, resp2.StatusCode)
}
