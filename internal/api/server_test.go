// ABOUTME: Tests for the chat HTTP endpoints using httptest and an in-memory collection
// ABOUTME: Covers request validation, post-then-get round trips, hit counting and error mapping

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/hitcount"
	"github.com/2389/coven-chat/internal/store"
)

type testEnv struct {
	coll    *store.MockCollection
	counter *hitcount.MemoryCounter
	server  *Server
	handler http.Handler
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	coll := store.NewMockCollection()
	svc := conversation.New(store.NewConversationStore(coll, nil), nil)
	counter := hitcount.NewMemoryCounter(time.Minute, 100)
	t.Cleanup(func() { counter.Close() })

	srv := NewServer(svc, counter, opts, nil)
	srv.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return &testEnv{coll: coll, counter: counter, server: srv, handler: srv.Router()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.7:51234"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeChat(t *testing.T, rec *httptest.ResponseRecorder) ChatResponse {
	t.Helper()
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

const postBody = `{
	"user": {"id": "1", "name": "User 1", "email": "bl@", "token": "ignored"},
	"chat_payload": {
		"channel_id": "1-2",
		"users": [
			{"id": "1", "name": "User 1", "email": "bl@"},
			{"id": "2", "name": "User 2", "email": "qw@"}
		],
		"messages": [
			{"sender_id": "1", "date": "2024-05-01 11:59:00", "message": "hello"}
		]
	}
}`

func TestGetChat_NewUserGetsPlaceholder(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodPost, "/chat/get", `{"user":{"id":"1","name":"User 1","email":"bl@"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeChat(t, rec)
	assert.Equal(t, int64(1), resp.Count)
	assert.Equal(t, "10.0.0.7", resp.ID)
	require.Len(t, resp.Chat, 1)
	assert.True(t, strings.HasPrefix(resp.Chat[0].ChannelID, "1-"))
	assert.Equal(t, []store.Participant{{ID: "1", Name: "User 1", Email: "bl@"}}, resp.Chat[0].Participants)
	assert.Empty(t, resp.Users)
}

func TestPostChat_ThenGet(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodPost, "/chat/post", postBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeChat(t, rec)
	require.Len(t, resp.Chat, 1)
	conv := resp.Chat[0]
	assert.Equal(t, "1-2", conv.ChannelID)
	assert.Equal(t, "2024-05-01 12:00:00.000000000 UTC", conv.LastUpdate)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].Body)
	assert.Len(t, resp.Users, 2)

	// Stored bodies are envelopes, not plain text
	doc := env.coll.Document("1-2")
	require.NotNil(t, doc)
	require.Len(t, doc.Messages, 1)
	assert.True(t, strings.HasPrefix(doc.Messages[0].Message, "Binary(0x2, "))

	// The other participant sees the same conversation
	rec = env.do(t, http.MethodPost, "/chat/get", `{"user":{"id":"2"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeChat(t, rec)
	require.Len(t, resp.Chat, 1)
	assert.Equal(t, "1-2", resp.Chat[0].ChannelID)
}

func TestPostChat_Idempotent(t *testing.T) {
	env := newTestEnv(t, Options{})

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/chat/post", postBody)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	doc := env.coll.Document("1-2")
	require.NotNil(t, doc)
	assert.Len(t, doc.Users, 2)
	assert.Len(t, doc.Messages, 1)
}

func TestChat_BadRequests(t *testing.T) {
	env := newTestEnv(t, Options{MaxBodyBytes: 512})

	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{"invalid json", "/chat/get", `{"user":`, "invalid JSON"},
		{"missing user", "/chat/get", `{}`, "user is required"},
		{"missing user id", "/chat/get", `{"user":{"name":"x"}}`, "user.id is required"},
		{"trailing data", "/chat/get", `{"user":{"id":"1"}} {}`, "single JSON object"},
		{"missing payload", "/chat/post", `{"user":{"id":"1"}}`, "chat_payload is required"},
		{"missing channel", "/chat/post", `{"user":{"id":"1"},"chat_payload":{"users":[{"id":"1"}]}}`, "channel_id is required"},
		{"empty users", "/chat/post", `{"user":{"id":"1"},"chat_payload":{"channel_id":"c","users":[]}}`, "users must not be empty"},
		{"empty participant id", "/chat/post", `{"user":{"id":"1"},"chat_payload":{"channel_id":"c","users":[{"id":""}]}}`, "users[0].id is required"},
		{"message without sender", "/chat/post", `{"user":{"id":"1"},"chat_payload":{"channel_id":"c","users":[{"id":"1"}],"messages":[{"date":"d","message":"m"}]}}`, "sender_id is required"},
		{"oversized body", "/chat/get", `{"user":{"id":"` + strings.Repeat("x", 600) + `"}}`, "exceeds 512 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec), tt.want)
		})
	}

	// Nothing was written
	assert.Nil(t, env.coll.Document("c"))
}

func TestChat_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.coll.Err = errors.New("connection refused")

	rec := env.do(t, http.MethodPost, "/chat/get", `{"user":{"id":"1"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), decodeError(t, rec))

	rec = env.do(t, http.MethodPost, "/chat/post", postBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChat_CorruptStoredMessage(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.coll.Put(&store.Document{
		ChannelID:  "1-2",
		LastUpdate: "2024-05-01 12:00:00.000000000 UTC",
		Users:      []store.Participant{{ID: "1"}, {ID: "2"}},
		Messages:   []store.StoredMessage{{SenderID: "1", Date: "d", Message: "not an envelope"}},
	})

	rec := env.do(t, http.MethodPost, "/chat/get", `{"user":{"id":"1"}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// Internal details stay out of the response
	assert.NotContains(t, decodeError(t, rec), "envelope")
}

func TestChat_HitCounting(t *testing.T) {
	env := newTestEnv(t, Options{MaxPerWindow: 2})

	for want := int64(1); want <= 2; want++ {
		rec := env.do(t, http.MethodPost, "/chat/get", `{"user":{"id":"1"}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, decodeChat(t, rec).Count)
	}

	rec := env.do(t, http.MethodPost, "/chat/get", `{"user":{"id":"1"}}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Counting is per path
	rec = env.do(t, http.MethodPost, "/chat/post", postBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decodeChat(t, rec).Count)

	assert.Equal(t, int64(3), env.counter.Count("/chat/get-10.0.0.7"))
}

func TestChat_ForwardedClientIP(t *testing.T) {
	env := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/chat/get", strings.NewReader(`{"user":{"id":"1"}}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "203.0.113.9", decodeChat(t, rec).ID)
}

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

func (failingCounter) Close() error { return nil }

func TestChat_CounterFailureIsNotFatal(t *testing.T) {
	coll := store.NewMockCollection()
	svc := conversation.New(store.NewConversationStore(coll, nil), nil)
	srv := NewServer(svc, failingCounter{}, Options{MaxPerWindow: 1}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat/get", bytes.NewBufferString(`{"user":{"id":"1"}}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decodeChat(t, rec).Count)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	env.coll.Err = errors.New("down")
	rec = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{MetricsPath: "/metrics"})
	env.do(t, http.MethodPost, "/chat/get", `{"user":{"id":"1"}}`)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coven_chat_http_requests_total")

	disabled := newTestEnv(t, Options{})
	rec = disabled.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWrongMethod(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/chat/get", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", errBadRequest), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", store.ErrInvalidConversation), http.StatusBadRequest},
		{conversation.ErrInvalidParticipant, http.StatusBadRequest},
		{fmt.Errorf("%w: find: %w", store.ErrStoreConnection, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: find: %w", store.ErrStoreConnection, errors.New("refused")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
