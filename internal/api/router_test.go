package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/auth"
	"github.com/lalith-99/agencychat/internal/chat"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/realtime"
	"github.com/lalith-99/agencychat/internal/repository"
	"github.com/lalith-99/agencychat/internal/repository/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	store  *memory.Store
	hub    *realtime.Hub
	router *gin.Engine
}

func newTestEnv(t *testing.T, configure func(*RouterConfig)) testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := memory.New()
	hub := realtime.NewHub(realtime.NewMemoryRegistry(), logger)
	svc := chat.NewService(store.Channels(), store.Messages(), store.Users(), hub, logger)

	cfg := RouterConfig{
		Chat:   svc,
		Users:  store.Users(),
		Store:  store,
		Hub:    hub,
		Logger: logger,
	}
	if configure != nil {
		configure(&cfg)
	}
	return testEnv{store: store, hub: hub, router: NewRouter(cfg)}
}

func (e testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (e testEnv) addUser(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := e.store.Users().Create(context.Background(), models.User{ID: id, Name: name, UserType: "employee"}); err != nil {
		t.Fatal(err)
	}
	return id
}

func (e testEnv) createChannel(t *testing.T, name string, isDM bool, members ...uuid.UUID) createChannelResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/channels", gin.H{
		"name": name, "is_dm": isDM, "member_ids": members, "created_by": members[0],
	})
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("create channel: %d %s", w.Code, w.Body.String())
	}
	return decode[createChannelResponse](t, w)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return repository.ErrStoreUnavailable }

func TestHealthStoreDown(t *testing.T) {
	e := newTestEnv(t, func(c *RouterConfig) { c.Store = downStore{} })
	w := e.do(t, http.MethodGet, "/v1/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestCreateChannel(t *testing.T) {
	e := newTestEnv(t, nil)
	a, b := uuid.New(), uuid.New()

	w := e.do(t, http.MethodPost, "/v1/channels", gin.H{
		"name": "design", "member_ids": []uuid.UUID{a, b}, "created_by": a,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("group status = %d (%s)", w.Code, w.Body.String())
	}

	first := e.do(t, http.MethodPost, "/v1/channels", gin.H{
		"name": "dm", "is_dm": true, "member_ids": []uuid.UUID{a, b}, "created_by": a,
	})
	if first.Code != http.StatusCreated {
		t.Fatalf("dm status = %d (%s)", first.Code, first.Body.String())
	}
	again := e.do(t, http.MethodPost, "/v1/channels", gin.H{
		"name": "dm", "is_dm": true, "member_ids": []uuid.UUID{b, a}, "created_by": b,
	})
	if again.Code != http.StatusOK {
		t.Fatalf("repeat dm status = %d, want 200", again.Code)
	}

	got1 := decode[createChannelResponse](t, first)
	got2 := decode[createChannelResponse](t, again)
	if got1.ID != got2.ID || !got2.IsDM {
		t.Fatalf("dm not reused: %+v vs %+v", got1, got2)
	}
}

func TestCreateChannelBadRequest(t *testing.T) {
	e := newTestEnv(t, nil)
	a := uuid.New()

	tests := []struct {
		name string
		body any
	}{
		{"missing name", gin.H{"member_ids": []uuid.UUID{a}, "created_by": a}},
		{"missing members", gin.H{"name": "x", "created_by": a}},
		{"blank name", gin.H{"name": "   ", "member_ids": []uuid.UUID{a}, "created_by": a}},
		{"dm of three", gin.H{"name": "x", "is_dm": true, "member_ids": []uuid.UUID{a, uuid.New(), uuid.New()}, "created_by": a}},
		{"malformed member", gin.H{"name": "x", "member_ids": []string{"nope"}, "created_by": a}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/v1/channels", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestListChannels(t *testing.T) {
	e := newTestEnv(t, nil)
	a, b := uuid.New(), uuid.New()

	if w := e.do(t, http.MethodGet, "/v1/channels", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id: status = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/v1/channels?user_id=nope", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed user_id: status = %d", w.Code)
	}

	ch := e.createChannel(t, "general", false, a, b)

	w := e.do(t, http.MethodGet, "/v1/channels?user_id="+a.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list := decode[[]channelListItem](t, w)
	if len(list) != 1 || list[0].ID != ch.ID || list[0].LastMessage != nil || list[0].UnreadCount != 0 {
		t.Fatalf("list = %+v", list)
	}

	e.do(t, http.MethodPost, "/v1/channels/"+ch.ID.String()+"/messages", gin.H{"user_id": a, "content": "hi"})

	list = decode[[]channelListItem](t, e.do(t, http.MethodGet, "/v1/channels?user_id="+b.String(), nil))
	if len(list) != 1 || list[0].LastMessage == nil {
		t.Fatalf("last_message not set: %+v", list)
	}

	list = decode[[]channelListItem](t, e.do(t, http.MethodGet, "/v1/channels?user_id="+uuid.NewString(), nil))
	if len(list) != 0 {
		t.Fatalf("stranger sees %d channels", len(list))
	}
}

func TestMembers(t *testing.T) {
	e := newTestEnv(t, nil)
	ann := e.addUser(t, "Ann")
	bob := e.addUser(t, "Bob")
	ghost := uuid.New()

	ch := e.createChannel(t, "general", false, bob, ghost, ann)

	w := e.do(t, http.MethodGet, "/v1/channels/"+ch.ID.String()+"/members", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	members := decode[[]models.MemberSummary](t, w)
	if len(members) != 2 || members[0].Name != "Bob" || members[1].Name != "Ann" {
		t.Fatalf("members = %+v", members)
	}

	for _, path := range []string{
		"/v1/channels/" + uuid.NewString() + "/members",
		"/v1/channels/not-a-uuid/members",
	} {
		if w := e.do(t, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d, want 404", path, w.Code)
		}
	}
}

func TestMessages(t *testing.T) {
	e := newTestEnv(t, nil)
	ann := e.addUser(t, "Ann")
	anon := uuid.New()
	ch := e.createChannel(t, "general", false, ann, anon)
	path := "/v1/channels/" + ch.ID.String() + "/messages"

	w := e.do(t, http.MethodPost, path, gin.H{"user_id": ann, "content": "first"})
	if w.Code != http.StatusCreated {
		t.Fatalf("post status = %d (%s)", w.Code, w.Body.String())
	}
	if got := decode[models.MessageSummary](t, w); got.Name != "Ann" || got.ID == "" {
		t.Fatalf("posted = %+v", got)
	}

	e.do(t, http.MethodPost, path, gin.H{"user_id": anon, "content": "second"})
	e.do(t, http.MethodPost, path, gin.H{"user_id": ann, "content": "third", "name": "Annie"})

	history := decode[[]models.MessageSummary](t, e.do(t, http.MethodGet, path, nil))
	if len(history) != 3 {
		t.Fatalf("history len = %d", len(history))
	}
	wantNames := []string{"Ann", models.UnknownAuthor, "Annie"}
	for i, m := range history {
		if m.Name != wantNames[i] {
			t.Fatalf("history[%d].name = %q, want %q", i, m.Name, wantNames[i])
		}
	}

	page := decode[[]models.MessageSummary](t, e.do(t, http.MethodGet, path+"?limit=2", nil))
	if len(page) != 2 || page[0].Content != "second" {
		t.Fatalf("limit page = %+v", page)
	}
	older := decode[[]models.MessageSummary](t, e.do(t, http.MethodGet, path+"?before="+page[0].ID, nil))
	if len(older) != 1 || older[0].Content != "first" {
		t.Fatalf("before page = %+v", older)
	}
}

func TestMessagesErrors(t *testing.T) {
	e := newTestEnv(t, nil)
	a := uuid.New()
	ch := e.createChannel(t, "general", false, a)
	path := "/v1/channels/" + ch.ID.String() + "/messages"

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"history of unknown channel", http.MethodGet, "/v1/channels/" + uuid.NewString() + "/messages", nil, http.StatusOK},
		{"malformed channel", http.MethodGet, "/v1/channels/nope/messages", nil, http.StatusNotFound},
		{"bad limit", http.MethodGet, path + "?limit=abc", nil, http.StatusBadRequest},
		{"zero limit", http.MethodGet, path + "?limit=0", nil, http.StatusBadRequest},
		{"post to unknown channel", http.MethodPost, "/v1/channels/" + uuid.NewString() + "/messages", gin.H{"user_id": a, "content": "x"}, http.StatusNotFound},
		{"missing content", http.MethodPost, path, gin.H{"user_id": a}, http.StatusBadRequest},
		{"blank content", http.MethodPost, path, gin.H{"user_id": a, "content": "  "}, http.StatusBadRequest},
		{"missing user", http.MethodPost, path, gin.H{"content": "x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}

	count, err := e.store.Messages().Count(context.Background(), ch.ID)
	if err != nil || count != 0 {
		t.Fatalf("count = %d, %v; rejected posts must not be stored", count, err)
	}
}

func TestUsers(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodPost, "/v1/users", gin.H{"name": "Cara", "email": "cara@example.com", "department": "design"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	created := decode[models.User](t, w)
	if created.ID == uuid.Nil || created.UserType != "employee" {
		t.Fatalf("created = %+v", created)
	}

	got := decode[models.User](t, e.do(t, http.MethodGet, "/v1/users/"+created.ID.String(), nil))
	if got.Name != "Cara" {
		t.Fatalf("got = %+v", got)
	}

	if w := e.do(t, http.MethodGet, "/v1/users/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/v1/users", gin.H{"email": "x@example.com"}); w.Code != http.StatusBadRequest {
		t.Fatalf("nameless user status = %d", w.Code)
	}
}

func TestAuthEnabled(t *testing.T) {
	const secret = "s3cret"
	e := newTestEnv(t, func(c *RouterConfig) { c.JWTSecret = secret })
	a, b := uuid.New(), uuid.New()

	if w := e.do(t, http.MethodGet, "/v1/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/v1/channels?user_id="+a.String(), nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", w.Code)
	}

	token, err := auth.GenerateToken(a, "a@example.com", "Ann", secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	authed := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(body)
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		return w
	}

	w := authed(http.MethodPost, "/v1/channels", gin.H{"name": "general", "member_ids": []uuid.UUID{a, b}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	ch := decode[createChannelResponse](t, w)

	// The caller's id stands in for a missing user_id.
	list := decode[[]channelListItem](t, authed(http.MethodGet, "/v1/channels", nil))
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}

	path := fmt.Sprintf("/v1/channels/%s/messages", ch.ID)
	w = authed(http.MethodPost, path, gin.H{"content": "hi"})
	if w.Code != http.StatusCreated {
		t.Fatalf("post status = %d (%s)", w.Code, w.Body.String())
	}
	if msg := decode[models.MessageSummary](t, w); msg.UserID != a || msg.Name != "Ann" {
		t.Fatalf("message = %+v", msg)
	}
	if w := authed(http.MethodPost, path, gin.H{"user_id": b, "content": "spoof"}); w.Code != http.StatusForbidden {
		t.Fatalf("spoofed user_id: status = %d", w.Code)
	}
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrapped: %w", chat.ErrInvalidArgument), http.StatusBadRequest},
		{chat.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", repository.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, zap.NewNop(), "do thing", tt.err)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	e := newTestEnv(t, nil)
	if w := e.do(t, http.MethodGet, "/v1/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	e.do(t, http.MethodGet, "/v1/health", nil)

	w := e.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("agencychat_http_requests_total")) {
		t.Fatalf("metrics missing: %d", w.Code)
	}
}
