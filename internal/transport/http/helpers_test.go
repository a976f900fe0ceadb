package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley-server/internal/auth"
	"github.com/parleyhq/parley-server/internal/config"
	"github.com/parleyhq/parley-server/internal/core"
	"github.com/parleyhq/parley-server/internal/metrics"
	"github.com/parleyhq/parley-server/internal/proto"
	"github.com/parleyhq/parley-server/internal/service/messages"
	"github.com/parleyhq/parley-server/internal/service/posts"
	"github.com/parleyhq/parley-server/internal/store/sqlite"
	"github.com/parleyhq/parley-server/internal/upload"
)

type testEnv struct {
	router  *gin.Engine
	server  *httptest.Server
	hub     *core.Hub
	auth    *auth.Service
	metrics *metrics.Metrics
	cfg     config.Config
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.UploadDir = t.TempDir()
	cfg.JWTSecret = "test-secret"
	cfg.JWTIssuer = "test"
	cfg.JWTAudience = "test"
	for _, m := range mutate {
		m(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	m := metrics.New()
	hub := core.NewHub(nil, m)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	uploads, err := upload.New(cfg.UploadDir, "uploads", cfg.MaxUploadBytes, cfg.MaxAttachments, nil)
	if err != nil {
		t.Fatalf("failed to create upload store: %v", err)
	}
	dispatcher := core.NewDispatcher(hub.Presence(), hub, nil, m)
	svc := messages.New(st, dispatcher, uploads, nil, m)
	postSvc := posts.New(st, dispatcher, nil, m)

	router := NewRouter(Deps{
		Hub:      hub,
		Auth:     authService,
		Messages: svc,
		Posts:    postSvc,
		Store:    st,
		Uploads:  uploads,
		Metrics:  m,
		Config:   &cfg,
	})
	ts := httptest.NewServer(router)
	// Close the server first so handlers finish before the hub shuts down.
	t.Cleanup(cancel)
	t.Cleanup(ts.Close)

	return &testEnv{router: router, server: ts, hub: hub, auth: authService, metrics: m, cfg: cfg}
}

// register creates a user and returns its id and token.
func (e *testEnv) register(t *testing.T, name string) (int64, string) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "password123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", name, rec.Code, rec.Body.String())
	}
	var resp AuthResponse
	decode(t, rec, &resp)
	return resp.User.ID, resp.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (e *testEnv) dialWS(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.server.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		raw = b
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// wireOutbound mirrors proto.Outbound with raw data for decoding.
type wireOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readOutbound(t *testing.T, ctx context.Context, conn *websocket.Conn) wireOutbound {
	t.Helper()

	var out wireOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return out
}

// identify binds the connection and waits until the hub has it.
func identify(t *testing.T, ctx context.Context, conn *websocket.Conn, token string) int64 {
	t.Helper()

	sendInbound(t, ctx, conn, proto.InboundTypeIdentify, proto.IdentifyData{Token: token})
	out := readOutbound(t, ctx, conn)
	if out.Type != proto.OutboundTypeEvent || out.Event != "identified" {
		t.Fatalf("expected identified event, got %+v", out)
	}
	var data proto.EventIdentified
	if err := json.Unmarshal(out.Data, &data); err != nil {
		t.Fatalf("decode identified: %v", err)
	}
	return data.UserID
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
