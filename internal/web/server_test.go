package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TutorChat/internal/backend"
	"TutorChat/internal/chatbot"
	"TutorChat/internal/session"
)

type stubProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *stubProvider) Name() string  { return "stub" }
func (p *stubProvider) Model() string { return "stub-model" }

func (p *stubProvider) Complete(_ context.Context, messages []backend.Message) (backend.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return backend.Completion{}, p.err
	}
	return backend.Completion{Content: "**re:** " + messages[len(messages)-1].Content}, nil
}

func (p *stubProvider) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestServer(t *testing.T, provider *stubProvider, rps float64) *server.Hertz {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bot, err := chatbot.New(chatbot.Options{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: "You are a helpful AI assistant.",
		MemoryLength: 10,
	})
	require.NoError(t, err)

	srv, err := New(Options{
		Bot:          bot,
		Sessions:     session.NewManager(0),
		Title:        "Chat with AI Tutor",
		Greeting:     "Hello there!",
		RateLimitRPS: rps,
		Logger:       logger,
	})
	require.NoError(t, err)

	h := server.Default(server.WithHostPorts(":0"))
	srv.Register(h)
	return h
}

func jsonBody(t *testing.T, v any) *ut.Body {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return &ut.Body{Body: bytes.NewReader(data), Len: len(data)}
}

func postChat(t *testing.T, h *server.Hertz, sessionID, question string) (int, []byte) {
	t.Helper()
	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if sessionID != "" {
		headers = append(headers, ut.Header{Key: sessionHeader, Value: sessionID})
	}
	w := ut.PerformRequest(h.Engine, "POST", "/api/chat", jsonBody(t, ChatRequest{Question: question}), headers...)
	resp := w.Result()
	return resp.StatusCode(), resp.Body()
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &stubProvider{}, 0)
	w := ut.PerformRequest(h.Engine, "GET", "/api/health", nil)
	resp := w.Result()
	assert.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), `"status":"ok"`)
}

func TestChat_AppendsTurnAndEchoesSession(t *testing.T) {
	provider := &stubProvider{}
	h := newTestServer(t, provider, 0)

	status, body := postChat(t, h, "", "Hello")
	require.Equal(t, 200, status, string(body))

	var first ChatResponse
	require.NoError(t, json.Unmarshal(body, &first))
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, "Hello", first.Turn.Human)
	assert.Equal(t, "**re:** Hello", first.Turn.AI)
	require.Len(t, first.History, 1)

	status, body = postChat(t, h, first.SessionID, "Again")
	require.Equal(t, 200, status)
	var second ChatResponse
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Equal(t, first.SessionID, second.SessionID)
	require.Len(t, second.History, 2)
	assert.Equal(t, "Hello", second.History[0].Human)
	assert.Equal(t, "Again", second.History[1].Human)
}

func TestChat_EmptyQuestion(t *testing.T) {
	provider := &stubProvider{}
	h := newTestServer(t, provider, 0)

	status, body := postChat(t, h, "", "   ")
	assert.Equal(t, 400, status)
	assert.Contains(t, string(body), "Please enter a question.")
	assert.Equal(t, 0, provider.callCount())
}

func TestChat_InferenceFailureKeepsHistory(t *testing.T) {
	provider := &stubProvider{}
	h := newTestServer(t, provider, 0)

	status, body := postChat(t, h, "", "Hello")
	require.Equal(t, 200, status)
	var ok ChatResponse
	require.NoError(t, json.Unmarshal(body, &ok))

	provider.fail(errors.New("upstream unavailable"))
	status, _ = postChat(t, h, ok.SessionID, "Second")
	assert.Equal(t, 502, status)

	w := ut.PerformRequest(h.Engine, "GET", "/api/history", nil, ut.Header{Key: sessionHeader, Value: ok.SessionID})
	var hist HistoryResponse
	require.NoError(t, json.Unmarshal(w.Result().Body(), &hist))
	assert.Equal(t, ok.SessionID, hist.SessionID)
	require.Len(t, hist.Turns, 1)
	assert.Equal(t, "Hello", hist.Turns[0].Human)
}

func TestChat_SessionsAreIsolated(t *testing.T) {
	h := newTestServer(t, &stubProvider{}, 0)

	_, body := postChat(t, h, "", "from a")
	var a ChatResponse
	require.NoError(t, json.Unmarshal(body, &a))

	_, body = postChat(t, h, "", "from b")
	var b ChatResponse
	require.NoError(t, json.Unmarshal(body, &b))

	assert.NotEqual(t, a.SessionID, b.SessionID)
	require.Len(t, b.History, 1)
	assert.Equal(t, "from b", b.History[0].Human)

	w := ut.PerformRequest(h.Engine, "GET", "/api/history", nil, ut.Header{Key: sessionHeader, Value: a.SessionID})
	var hist HistoryResponse
	require.NoError(t, json.Unmarshal(w.Result().Body(), &hist))
	require.Len(t, hist.Turns, 1)
	assert.Equal(t, "from a", hist.Turns[0].Human)
}

func TestChat_InvalidBody(t *testing.T) {
	h := newTestServer(t, &stubProvider{}, 0)
	body := &ut.Body{Body: strings.NewReader("{not json"), Len: len("{not json")}
	w := ut.PerformRequest(h.Engine, "POST", "/api/chat", body, ut.Header{Key: "Content-Type", Value: "application/json"})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestReset_StartsFreshSession(t *testing.T) {
	h := newTestServer(t, &stubProvider{}, 0)

	_, body := postChat(t, h, "", "Hello")
	var first ChatResponse
	require.NoError(t, json.Unmarshal(body, &first))

	w := ut.PerformRequest(h.Engine, "POST", "/api/session/reset", nil, ut.Header{Key: sessionHeader, Value: first.SessionID})
	require.Equal(t, 200, w.Result().StatusCode())
	var reset map[string]string
	require.NoError(t, json.Unmarshal(w.Result().Body(), &reset))
	assert.NotEqual(t, first.SessionID, reset["session_id"])

	w = ut.PerformRequest(h.Engine, "GET", "/api/history", nil, ut.Header{Key: sessionHeader, Value: reset["session_id"]})
	var hist HistoryResponse
	require.NoError(t, json.Unmarshal(w.Result().Body(), &hist))
	assert.Empty(t, hist.Turns)
}

func TestIndex_RendersHistory(t *testing.T) {
	h := newTestServer(t, &stubProvider{}, 0)

	_, body := postChat(t, h, "", "<script>alert(1)</script>")
	var chat ChatResponse
	require.NoError(t, json.Unmarshal(body, &chat))

	w := ut.PerformRequest(h.Engine, "GET", "/", nil, ut.Header{Key: sessionHeader, Value: chat.SessionID})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	page := string(resp.Body())
	assert.Contains(t, page, "<title>Chat with AI Tutor</title>")
	assert.Contains(t, page, "Hello there!")
	assert.Contains(t, page, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, page, "<script>alert(1)</script>")
	assert.Contains(t, page, "<strong>re:</strong>")
}

func TestChatForm_RedirectsAndRejectsEmpty(t *testing.T) {
	provider := &stubProvider{}
	h := newTestServer(t, provider, 0)
	form := "question=Hello"
	headers := []ut.Header{{Key: "Content-Type", Value: "application/x-www-form-urlencoded"}}

	w := ut.PerformRequest(h.Engine, "POST", "/chat", &ut.Body{Body: strings.NewReader(form), Len: len(form)}, headers...)
	assert.Equal(t, 303, w.Result().StatusCode())
	assert.Equal(t, 1, provider.callCount())

	empty := "question="
	w = ut.PerformRequest(h.Engine, "POST", "/chat", &ut.Body{Body: strings.NewReader(empty), Len: len(empty)}, headers...)
	assert.Equal(t, 400, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "Please enter a question.")
	assert.Equal(t, 1, provider.callCount())
}

func TestRateLimit(t *testing.T) {
	provider := &stubProvider{}
	h := newTestServer(t, provider, 0.01)

	status, _ := postChat(t, h, "", "first")
	assert.Equal(t, 200, status)
	status, _ = postChat(t, h, "", "second")
	assert.Equal(t, 429, status)
	assert.Equal(t, 1, provider.callCount())
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t, &stubProvider{}, 0)
	postChat(t, h, "", "Hello")

	w := ut.PerformRequest(h.Engine, "GET", "/metrics", nil)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "tutorchat_active_sessions")
	assert.Contains(t, string(resp.Body()), "tutorchat_dispatch_total")
}
