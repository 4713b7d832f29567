package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:     http.StatusBadRequest,
		KindAuthentication: http.StatusUnauthorized,
		KindAuthorization:  http.StatusForbidden,
		KindRateLimited:    http.StatusLocked,
		KindNotFound:       http.StatusNotFound,
		KindConflict:       http.StatusConflict,
		KindInternal:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.Status(); got != want {
			t.Fatalf("%s.Status() = %d, want %d", kind, got, want)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("handler: %w", Authorization("forbidden"))
	if KindOf(err) != KindAuthorization {
		t.Fatalf("unexpected kind: %s", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("plain errors must map to internal")
	}
}

func respond(t *testing.T, err error, debug bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Respond(c, err, debug)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return rec, body
}

func TestRespondHidesInternalDetailsInRelease(t *testing.T) {
	rec, body := respond(t, errors.New("pq: connection refused"), false)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if body["success"] != false {
		t.Fatalf("unexpected success flag: %v", body["success"])
	}
	if _, ok := body["details"]; ok {
		t.Fatal("details must not be exposed outside debug mode")
	}
}

func TestRespondIncludesDetailsInDebug(t *testing.T) {
	_, body := respond(t, errors.New("pq: connection refused"), true)
	if body["details"] != "pq: connection refused" {
		t.Fatalf("unexpected details: %v", body["details"])
	}
}

func TestRespondUsesKindStatus(t *testing.T) {
	rec, body := respond(t, RateLimited("しばらくしてから再度お試しください。"), false)
	if rec.Code != http.StatusLocked {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if body["code"] != string(KindRateLimited) {
		t.Fatalf("unexpected code: %v", body["code"])
	}
}
