//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/techtree/internal/curriculum"
	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/identity"
	"github.com/ashureev/techtree/internal/interview"
	"github.com/ashureev/techtree/internal/store"
	"github.com/go-chi/chi/v5"
)

type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, in interview.ClassifyInput) (interview.Classification, error) {
	switch strings.ToLower(strings.TrimSpace(in.Message)) {
	case "start", "next":
		return interview.Classification{Intent: "NEXT_QUESTION"}, nil
	case "bye":
		return interview.Classification{Intent: "QUIT"}, nil
	case "hi":
		return interview.Classification{Intent: "CONSULT"}, nil
	}
	return interview.Classification{Intent: "ANSWER"}, nil
}

type stubBank struct{}

func (stubBank) GenerateQuestions(_ context.Context, req interview.QuestionRequest) ([]domain.Question, error) {
	return []domain.Question{{Subject: req.Subject, Topic: req.Topic, Text: "Explain " + req.Topic + "."}}, nil
}

type stubEvaluator struct{}

func (stubEvaluator) EvaluateAnswer(context.Context, domain.Question, string) (domain.Verdict, error) {
	return domain.NewVerdict(80, "solid", "good", ""), nil
}

func (stubEvaluator) AnalyzeSession(context.Context, []domain.Message) (domain.Report, error) {
	return domain.Report{TotalScore: 80, Tier: "Middle", Strengths: []string{"basics"}, Weaknesses: []string{}}, nil
}

type testEnv struct {
	srv     *httptest.Server
	client  *http.Client
	repo    *store.MemoryStore
	limiter *RateLimiter
}

func newTestEnv(t *testing.T, rps float64, burst int) *testEnv {
	t.Helper()

	repo := store.NewMemory()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := interview.New(interview.Deps{
		Sessions:   interview.NewSessions(repo, domain.SessionDefaults{MaxQuestions: 2}),
		Classifier: stubClassifier{},
		Questions:  stubBank{},
		Evaluator:  stubEvaluator{},
		Progress:   store.NewProgressService(repo),
		Logger:     quiet,
	}, interview.Options{AutoAdvance: false, BatchSize: 1})
	if err != nil {
		t.Fatalf("interview.New: %v", err)
	}

	tree, err := curriculum.Default()
	if err != nil {
		t.Fatalf("curriculum.Default: %v", err)
	}

	limiter := NewRateLimiter(rps, burst, 0)
	t.Cleanup(limiter.Close)

	turns := NewInterviewHandler(InterviewConfig{Orchestrator: orch, Limiter: limiter})
	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, true))
	turns.RegisterRoutes(r)
	NewCatalogHandler(tree, repo).RegisterRoutes(r)
	r.Get("/ws/interview", NewWebSocketHandler(turns, "*", true).ServeHTTP)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, _ := cookiejar.New(nil)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, repo: repo, limiter: limiter}
}

func (e *testEnv) do(t *testing.T, method, path, sessionID, body string, header ...string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(identity.SessionHeaderName, sessionID)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (e *testEnv) message(t *testing.T, sessionID, text string) (int, map[string]any) {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/interview/message", sessionID, fmt.Sprintf(`{"message":%q}`, text))
	var out map[string]any
	_ = json.Unmarshal(body, &out)
	return status, out
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{interview.ErrEmptyMessage, http.StatusBadRequest},
		{fmt.Errorf("turn: %w", interview.ErrSessionCompleted), http.StatusConflict},
		{interview.ErrSessionStarted, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestInterviewFlowOverHTTP(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 1)

	status, body := env.do(t, http.MethodPost, "/api/interview/sessions", "", `{"track":"Go","topic":"Channels","max_questions":1}`)
	if status != http.StatusCreated {
		t.Fatalf("start: status %d body %s", status, body)
	}
	var started sessionResponse
	if err := json.Unmarshal(body, &started); err != nil || started.SessionID == "" {
		t.Fatalf("start: bad response %s", body)
	}
	if started.Session.Track != "Go" || started.Session.MaxQuestions != 1 {
		t.Fatalf("start: session not configured: %+v", started.Session)
	}
	sid := started.SessionID
	if started.Session.ID != sid {
		t.Fatalf("session payload should carry the client id %q, got %q", sid, started.Session.ID)
	}

	status, turn := env.message(t, sid, "start")
	if status != http.StatusOK || turn["intent"] != "NEXT_QUESTION" {
		t.Fatalf("first turn: %d %v", status, turn)
	}
	if got := turn["session"].(map[string]any)["id"]; got != sid {
		t.Fatalf("turn session id = %v, want %q", got, sid)
	}
	replies := turn["replies"].([]any)
	if len(replies) != 1 || !strings.Contains(replies[0].(map[string]any)["text"].(string), "Channels") {
		t.Fatalf("expected a question about Channels, got %v", replies)
	}

	status, body = env.do(t, http.MethodGet, "/api/interview/session", sid, "")
	if status != http.StatusOK || !strings.Contains(string(body), `"active"`) {
		t.Fatalf("snapshot should show the active question: %d %s", status, body)
	}
	if strings.Contains(string(body), ":"+sid) {
		t.Fatalf("snapshot leaked the internal session key: %s", body)
	}

	status, turn = env.message(t, sid, "goroutines talk over channels")
	if status != http.StatusOK || turn["completed"] != true {
		t.Fatalf("answering the only question should complete the session: %d %v", status, turn)
	}

	status, turn = env.message(t, sid, "one more?")
	if status != http.StatusConflict || turn["error"] != "session_completed" {
		t.Fatalf("expected 409 after completion, got %d %v", status, turn)
	}

	status, _ = env.do(t, http.MethodPost, "/api/interview/sessions", "", fmt.Sprintf(`{"session_id":%q}`, sid))
	if status != http.StatusConflict {
		t.Fatalf("restarting a used session should conflict, got %d", status)
	}

	status, body = env.do(t, http.MethodGet, "/api/progress", "", "")
	if status != http.StatusOK || !strings.Contains(string(body), `"total_stars":1`) {
		t.Fatalf("passing answer should earn a star: %d %s", status, body)
	}
}

func TestMessageValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 1)
	if status, _ := env.message(t, "s1", "   "); status != http.StatusBadRequest {
		t.Fatalf("blank message: expected 400, got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/api/interview/message", "s1", "{not json"); status != http.StatusBadRequest {
		t.Fatalf("bad body: expected 400, got %d", status)
	}
	big := `{"message":"` + strings.Repeat("a", defaultMaxRequestBodySize) + `"}`
	if status, _ := env.do(t, http.MethodPost, "/api/interview/message", "s1", big); status != http.StatusRequestEntityTooLarge {
		t.Fatalf("huge body: expected 413, got %d", status)
	}
}

func TestStartRejectsInvalidSessionID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 1)
	for _, id := range []string{"has:colon", "white space", strings.Repeat("x", 129)} {
		status, body := env.do(t, http.MethodPost, "/api/interview/sessions", "", fmt.Sprintf(`{"session_id":%q,"max_questions":1}`, id))
		if status != http.StatusBadRequest {
			t.Errorf("session_id %q: expected 400, got %d %s", id, status, body)
		}
	}

	status, body := env.do(t, http.MethodGet, "/api/interview/session", "", "")
	if status != http.StatusOK || !strings.Contains(string(body), `"max_questions":2`) {
		t.Fatalf("default session should keep its defaults: %d %s", status, body)
	}
}

func TestMessageRateLimited(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0.001, 1)
	if status, _ := env.message(t, "s1", "hi"); status != http.StatusOK {
		t.Fatalf("first message: expected 200, got %d", status)
	}
	if status, _ := env.message(t, "s2", "hi"); status != http.StatusTooManyRequests {
		t.Fatalf("second message: expected 429 even on another session, got %d", status)
	}
}

func TestMessageStreamsSSE(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 1)
	status, body := env.do(t, http.MethodPost, "/api/interview/message", "s1", `{"message":"start"}`, "Accept", "text/event-stream")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	text := string(body)
	if !strings.Contains(text, "id: 1\nevent: message\n") || !strings.Contains(text, "id: 2\nevent: done\n") {
		t.Fatalf("unexpected SSE body:\n%s", text)
	}
}

func TestCurriculumRoutes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 1)
	status, body := env.do(t, http.MethodGet, "/api/curriculum", "", "")
	if status != http.StatusOK || !strings.Contains(string(body), "[Available Tracks]") {
		t.Fatalf("list: %d %s", status, body)
	}
	if status, _ := env.do(t, http.MethodGet, "/api/curriculum/no-such-track", "", ""); status != http.StatusNotFound {
		t.Fatalf("unknown track: expected 404, got %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/api/curriculum/Origin?tier=nope", "", ""); status != http.StatusNotFound {
		t.Fatalf("unknown tier: expected 404, got %d", status)
	}
	status, body = env.do(t, http.MethodGet, "/api/curriculum/Origin", "", "")
	if status != http.StatusOK || !strings.Contains(string(body), "Available Tiers") {
		t.Fatalf("track: %d %s", status, body)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("down") }

func TestReady(t *testing.T) {
	t.Parallel()

	ok := NewHealthHandler(map[string]Pinger{"sessions": store.NewMemory()})
	rec := httptest.NewRecorder()
	ok.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	bad := NewHealthHandler(map[string]Pinger{"sessions": downPinger{}})
	rec = httptest.NewRecorder()
	bad.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "unreachable") {
		t.Fatalf("expected 503 with unreachable check, got %d %s", rec.Code, rec.Body.String())
	}
}
