package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/techtree/internal/store"
)

func TestMiddlewareIssuesCookieAndCreatesUser(t *testing.T) {
	t.Parallel()

	repo := store.NewMemory()
	var gotUser, gotSession, gotNick string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotNick = NicknameFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/interview/session", nil)
	req.Header.Set(SessionHeaderName, "tab-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !isValidAnonID(gotUser) {
		t.Fatalf("expected generated anon id, got %q", gotUser)
	}
	if gotSession != "tab-42" || !strings.HasPrefix(gotNick, "guest-") {
		t.Fatalf("unexpected context values: session=%q nick=%q", gotSession, gotNick)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != gotUser {
		t.Fatalf("expected anon cookie, got %+v", cookies)
	}
	if u, _ := repo.GetUser(context.Background(), gotUser); u == nil {
		t.Fatal("guest user should be persisted")
	}

	// A returning browser keeps its identity.
	again := httptest.NewRequest(http.MethodGet, "/?session_id=q-1", nil)
	again.AddCookie(cookies[0])
	first := gotUser
	h.ServeHTTP(httptest.NewRecorder(), again)
	if gotUser != first || gotSession != "q-1" {
		t.Fatalf("expected same user and query session, got %q %q", gotUser, gotSession)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":             DefaultSessionIDValue,
		"  abc  ":      "abc",
		"has space":    DefaultSessionIDValue,
		"user:session": DefaultSessionIDValue,
		"a.b_c-1":      "a.b_c-1",
	}
	for in, want := range tests {
		if got := SanitizeSessionID(in); got != want {
			t.Errorf("SanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithIdentity(t *testing.T) {
	t.Parallel()

	ctx := WithIdentity(context.Background(), "anon_x", "../bad")
	if UserIDFromContext(ctx) != "anon_x" || SessionIDFromContext(ctx) != DefaultSessionIDValue {
		t.Fatal("WithIdentity should set sanitized values")
	}
	if SessionIDFromContext(context.Background()) != DefaultSessionIDValue {
		t.Fatal("missing session id should fall back to default")
	}
}
