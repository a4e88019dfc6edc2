package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"anonfeed/internal/bootstrap"
	"anonfeed/internal/config"
	"anonfeed/internal/database"
	"anonfeed/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:5173"

var dbSeq atomic.Int64

// testConfig is a development config with plain-email sign-in enabled.
func testConfig() *config.Config {
	return &config.Config{
		Port:                "0",
		Env:                 "test",
		AllowedOrigins:      testOrigin,
		FeatureFlags:        "feed_cache=on,realtime=on",
		DBDriver:            "sqlite",
		JWTSecret:           "test-secret-that-is-long-enough-123",
		SessionTTL:          time.Hour,
		AuthTrustPlainEmail: true,
		StorageTimeout:      2 * time.Second,
		FeedPageLimit:       50,
		ContentMaxLength:    300,
		NodeID:              3,
	}
}

type testServerOptions struct {
	// withoutRedis runs every Redis-backed concern in-process.
	withoutRedis bool
	configure    func(*config.Config)
}

type testServer struct {
	srv *Server
	app *fiber.App
	mr  *miniredis.Miniredis
}

func newTestServer(t *testing.T, opts testServerOptions) *testServer {
	t.Helper()

	cfg := testConfig()
	if opts.configure != nil {
		opts.configure(cfg)
	}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLiteMemory(fmt.Sprintf("srv_%s_%d", name, dbSeq.Add(1)))
	require.NoError(t, err)

	ts := &testServer{}
	var rdb *redis.Client
	if !opts.withoutRedis {
		ts.mr = miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: ts.mr.Addr()})
	}

	rt, err := bootstrap.New(cfg, db, rdb)
	require.NoError(t, err)

	ts.srv = NewServerWithRuntime(rt)
	ts.app = ts.srv.App()
	t.Cleanup(func() { _ = rt.Close() })
	return ts
}

type request struct {
	method  string
	path    string
	token   string
	body    any
	headers map[string]string
}

// do runs req against the app and returns the response with its body read.
func (ts *testServer) do(t *testing.T, req request) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	httpReq := httptest.NewRequest(req.method, req.path, body)
	if req.body != nil {
		httpReq.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if req.token != "" {
		httpReq.Header.Set(fiber.HeaderAuthorization, "Bearer "+req.token)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := ts.app.Test(httpReq, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

type sessionBody struct {
	Token    string          `json:"token"`
	Identity models.Identity `json:"identity"`
}

// signIn creates a session for email through the plain-email path.
func (ts *testServer) signIn(t *testing.T, email string) sessionBody {
	t.Helper()
	resp, raw := ts.do(t, request{method: http.MethodPost, path: "/api/session", body: fiber.Map{"email": email}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var s sessionBody
	require.NoError(t, json.Unmarshal(raw, &s))
	require.NotEmpty(t, s.Token)
	return s
}

func (ts *testServer) createPost(t *testing.T, token, content string) models.Post {
	t.Helper()
	resp, raw := ts.do(t, request{method: http.MethodPost, path: "/api/posts", token: token, body: fiber.Map{"content": content}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var p models.Post
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func decodeError(t *testing.T, raw []byte) models.ErrorResponse {
	t.Helper()
	var e models.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &e), string(raw))
	return e
}

func decodePosts(t *testing.T, raw []byte) []models.Post {
	t.Helper()
	var posts []models.Post
	require.NoError(t, json.Unmarshal(raw, &posts), string(raw))
	return posts
}
