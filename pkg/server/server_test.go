package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/events"
	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/cxcscmu/LLM-Interviewer/pkg/orchestrator"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
	"github.com/cxcscmu/LLM-Interviewer/pkg/store"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	mu     sync.Mutex
	calls  int
	chunks []string
	err    error
}

func (a *fakeAdapter) Stream(ctx context.Context, model, system string, msgs []conversation.Message, emit func(string) error) error {
	a.mu.Lock()
	a.calls++
	chunks, err := a.chunks, a.err
	a.mu.Unlock()
	for _, c := range chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return err
}

func (a *fakeAdapter) set(chunks []string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks, a.err = chunks, err
}

func (a *fakeAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	client  *http.Client
	adapter *fakeAdapter
	store   store.RecordStore
}

func newEnv(t *testing.T, options ...Option) *testEnv {
	catalog, err := models.LoadDefault()
	require.NoError(t, err)
	a := &fakeAdapter{chunks: []string{"Hi", " there"}}
	r := router.New(catalog,
		router.WithAdapter(models.FamilyOpenAI, a),
		router.WithAdapter(models.FamilyBedrock, a),
	)
	st := store.NewInMemoryRecordStore()
	srv, err := New(r, st, options...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.sessions.closeAll()
		ts.Close()
	})
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, http: ts, client: &http.Client{Jar: jar}, adapter: a, store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	require.NoError(t, err)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func readAll(t *testing.T, resp *http.Response) string {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func chatBody(model string) chatRequest {
	return chatRequest{Model: model, Messages: []conversation.Message{conversation.NewUserMessage("hello")}}
}

func TestChatStreamsText(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/chat", chatBody("gpt-4o"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Hi there", readAll(t, resp))
	assert.Empty(t, resp.Trailer.Get(StreamErrorTrailer))
	assert.Equal(t, 1, e.adapter.count())
}

func TestChatUnknownModel(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/chat", chatBody("gpt-5-ultra"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Equal(t, "invalid_model", body.Kind)
	assert.Contains(t, body.Error, "gpt-5-ultra")
	assert.Equal(t, 0, e.adapter.count())
}

func TestChatFamilyNotConfigured(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/chat", chatBody("gemini-1.5-flash"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "family_not_configured", decode[errorResponse](t, resp).Kind)
}

func TestChatInvalidBody(t *testing.T) {
	e := newEnv(t)
	req, err := http.NewRequest(http.MethodPost, e.http.URL+"/api/chat", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/chat", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/chat", chatRequest{Model: "gpt-4o", Messages: []conversation.Message{{Role: "tool", Content: "x"}}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", decode[errorResponse](t, resp).Kind)
}

func TestChatMidStreamFailure(t *testing.T) {
	e := newEnv(t)
	e.adapter.set([]string{"partial"}, errors.New("backend exploded"))
	resp := e.do(t, http.MethodPost, "/api/chat", chatBody("gpt-4o"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "partial", readAll(t, resp))
	assert.Contains(t, resp.Trailer.Get(StreamErrorTrailer), "backend exploded")
}

func TestSessionCookieAndConversation(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/api/conversation", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[conversation.Record](t, resp)
	assert.Empty(t, rec.Session)

	u, err := url.Parse(e.http.URL)
	require.NoError(t, err)
	cookies := e.client.Jar.Cookies(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)

	keys, err := e.store.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []store.Key{store.SessionKey(cookies[0].Value)}, keys)
}

func TestPhaseMessagesStreamIntoRecord(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/phases/session/messages", submitRequest{Text: "plan a trip"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hi there", readAll(t, resp))

	rec := decode[conversation.Record](t, e.do(t, http.MethodGet, "/api/conversation", nil))
	assert.Equal(t, "gpt-4o", rec.SessionModel)
	require.Len(t, rec.Session, 2)
	assert.Equal(t, conversation.NewUserMessage("plan a trip"), rec.Session[0])
	assert.Equal(t, conversation.NewAssistantMessage("Hi there"), rec.Session[1])
	assert.NotNil(t, rec.SessionStart)
	assert.Empty(t, rec.Interview)

	resp = e.do(t, http.MethodPost, "/api/phases/session/messages", submitRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "empty_message", decode[errorResponse](t, resp).Kind)
}

func TestSelectModel(t *testing.T) {
	e := newEnv(t)
	claude := "us.anthropic.claude-3-5-sonnet-20241022-v2:0"

	resp := e.do(t, http.MethodPost, "/api/phases/session/model", selectModelRequest{Model: claude})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, claude, decode[orchestrator.Status](t, resp).Model)

	resp = e.do(t, http.MethodPost, "/api/phases/session/model", selectModelRequest{Model: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_model", decode[errorResponse](t, resp).Kind)

	resp = e.do(t, http.MethodPost, "/api/phases/session/model", selectModelRequest{Model: "gemini-1.5-pro"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "model_not_offered", decode[errorResponse](t, resp).Kind)

	resp = e.do(t, http.MethodPost, "/api/phases/session/model", selectModelRequest{Random: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	readAll(t, e.do(t, http.MethodPost, "/api/phases/session/messages", submitRequest{Text: "hi"}))

	resp = e.do(t, http.MethodPost, "/api/phases/session/model", selectModelRequest{Model: "gpt-4o"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "model_locked", decode[errorResponse](t, resp).Kind)
}

func TestStatusGating(t *testing.T) {
	e := newEnv(t, WithMinTurns(1))
	st := decode[orchestrator.Status](t, e.do(t, http.MethodGet, "/api/phases/session/status", nil))
	assert.False(t, st.CanContinue)
	assert.False(t, st.Locked)

	readAll(t, e.do(t, http.MethodPost, "/api/phases/session/messages", submitRequest{Text: "one"}))
	st = decode[orchestrator.Status](t, e.do(t, http.MethodGet, "/api/phases/session/status", nil))
	assert.True(t, st.CanContinue)
	assert.True(t, st.Locked)
	assert.Len(t, st.Messages, 2)

	resp := e.do(t, http.MethodPost, "/api/phases/session/cancel", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestInterviewSeededFromSession(t *testing.T) {
	e := newEnv(t)
	readAll(t, e.do(t, http.MethodPost, "/api/phases/session/messages", submitRequest{Text: "hello"}))

	st := decode[orchestrator.Status](t, e.do(t, http.MethodGet, "/api/phases/interview/status", nil))
	assert.Equal(t, orchestrator.SeedLength, st.SeedLength)
	require.Len(t, st.Messages, 2)
	assert.Contains(t, st.Messages[0].Content, `"content":"hello"`)

	rec := decode[conversation.Record](t, e.do(t, http.MethodGet, "/api/conversation", nil))
	assert.Len(t, rec.Session, 2)
	assert.Len(t, rec.Interview, 2)
	assert.Equal(t, "gpt-4o", rec.InterviewModel)
}

func TestPhaseRouting(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/api/phases/lunch/status", "/api/phases/session/unknown", "/api/phases/session"} {
		resp := e.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		resp.Body.Close()
	}
	resp := e.do(t, http.MethodGet, "/api/phases/session/messages", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func TestModels(t *testing.T) {
	e := newEnv(t)
	resp := decode[modelsResponse](t, e.do(t, http.MethodGet, "/api/models?phase=session", nil))
	assert.Equal(t, conversation.PhaseSession, resp.Phase)
	assert.Equal(t, "gpt-4o", resp.Default)
	require.Len(t, resp.Models, 2)
	assert.True(t, resp.Models[0].Configured)

	all := decode[modelsResponse](t, e.do(t, http.MethodGet, "/api/models", nil))
	var gemini *modelInfo
	for i := range all.Models {
		if all.Models[i].Value == "gemini-1.5-flash" {
			gemini = &all.Models[i]
		}
	}
	require.NotNil(t, gemini)
	assert.False(t, gemini.Configured)
	assert.Equal(t, models.FamilyGoogle, gemini.Family)

	r := e.do(t, http.MethodGet, "/api/models?phase=lunch", nil)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	r.Body.Close()
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/api/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="chatlog-undefined.json"`, resp.Header.Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(readAll(t, resp), "{\n  \"schemaVersion\": 1,"))

	readAll(t, e.do(t, http.MethodGet, "/api/phases/interview/status", nil))
	resp = e.do(t, http.MethodGet, "/api/export?format=md", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Regexp(t, `filename="chatlog-\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z\.md"`, resp.Header.Get("Content-Disposition"))
	assert.Contains(t, readAll(t, resp), "## Interview")

	resp = e.do(t, http.MethodGet, "/api/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocketSubmit(t *testing.T) {
	e := newEnv(t)
	u, err := url.Parse(e.http.URL)
	require.NoError(t, err)
	// issue the cookie over plain http first
	readAll(t, e.do(t, http.MethodGet, "/api/conversation", nil))
	header := http.Header{}
	for _, c := range e.client.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}

	wsURL := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws/phases/session"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	first := readFrame(t, conn)
	require.Equal(t, "status", first.Type)
	assert.Empty(t, first.Status.Messages)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "submit", Text: "hello"}))
	var deltas []string
	var done wsFrame
	for {
		f := readFrame(t, conn)
		if f.Type == "token" {
			deltas = append(deltas, f.Delta)
			continue
		}
		done = f
		break
	}
	assert.Equal(t, []string{"Hi", " there"}, deltas)
	require.Equal(t, "done", done.Type)
	assert.Equal(t, "Hi there", done.Message.Content)

	st := readFrame(t, conn)
	require.Equal(t, "status", st.Type)
	assert.Len(t, st.Status.Messages, 2)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "submit", Text: " "}))
	f := readFrame(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "empty_message", f.Kind)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "dance"}))
	f = readFrame(t, conn)
	assert.Equal(t, "invalid_request", f.Kind)

	rec := decode[conversation.Record](t, e.do(t, http.MethodGet, "/api/conversation", nil))
	assert.Len(t, rec.Session, 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	er, err := events.NewEventRouter()
	require.NoError(t, err)
	catalog, err := models.LoadDefault()
	require.NoError(t, err)
	r := router.New(catalog)
	srv, err := New(r, store.NewInMemoryRecordStore(), WithAddr("127.0.0.1:0"), WithEventRouter(er, "chat"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-er.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("event router did not start")
	}
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
