package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newService(t *testing.T, secret string, now func() time.Time) *Service {
	t.Helper()
	svc, err := NewService(secret, now)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService("", nil); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	svc := newService(t, "csrf-secret", nil)

	tok, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !svc.Verify(tok) {
		t.Fatal("expected freshly issued token to verify")
	}

	other, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if other == tok {
		t.Fatal("expected a fresh nonce per token")
	}
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	session := newService(t, "session-secret", nil)
	csrfSvc := newService(t, "csrf-secret", nil)

	tok, err := session.Issue()
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if csrfSvc.Verify(tok) {
		t.Fatal("token signed with another secret must not verify")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	svc := newService(t, "csrf-secret", func() time.Time { return now })

	tok, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	now = start.Add(59 * time.Minute)
	if !svc.Verify(tok) {
		t.Fatal("token should still be valid before one hour")
	}
	now = start.Add(DefaultTTL)
	if svc.Verify(tok) {
		t.Fatal("token must expire after one hour")
	}
}

func TestVerifyRejectsTampered(t *testing.T) {
	svc := newService(t, "csrf-secret", nil)
	tok, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	for i := 0; i < len(tok); i++ {
		replacement := byte('A')
		if tok[i] == 'A' {
			replacement = 'B'
		}
		if svc.Verify(tok[:i] + string(replacement) + tok[i+1:]) {
			t.Fatalf("mutation at %d was accepted", i)
		}
	}
	if svc.Verify("") || svc.Verify("garbage") {
		t.Fatal("garbage must not verify")
	}
}

func TestRequireMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newService(t, "csrf-secret", nil)
	valid, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	router := gin.New()
	router.Use(svc.Require("/api/auth/logout"))
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	router.GET("/api/items", ok)
	router.POST("/api/items", ok)
	router.POST("/api/auth/logout", ok)
	router.POST("/login", ok)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"safe method", http.MethodGet, "/api/items", "", http.StatusNoContent},
		{"missing token", http.MethodPost, "/api/items", "", http.StatusForbidden},
		{"bad token", http.MethodPost, "/api/items", "nope", http.StatusForbidden},
		{"valid token", http.MethodPost, "/api/items", valid, http.StatusNoContent},
		{"non api path", http.MethodPost, "/login", "", http.StatusNoContent},
		{"exempt path", http.MethodPost, "/api/auth/logout", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.token != "" {
			req.Header.Set(HeaderName, tc.token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}
