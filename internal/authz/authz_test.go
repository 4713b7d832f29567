package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/crm-console/internal/apperr"
	"github.com/yourusername/crm-console/internal/identity"
)

func TestAuthorize(t *testing.T) {
	admin := &identity.Identity{UserID: "a", Role: identity.RoleAdmin}
	manager := &identity.Identity{UserID: "m", Role: identity.RoleManager}
	user := &identity.Identity{UserID: "u", Role: identity.RoleUser}

	cases := []struct {
		name     string
		id       *identity.Identity
		owner    string
		required identity.Role
		want     apperr.Kind
	}{
		{"anonymous", nil, "", "", apperr.KindAuthentication},
		{"admin on other's resource", admin, "u", "", ""},
		{"owner", user, "u", "", ""},
		{"non owner", user, "m", "", apperr.KindAuthorization},
		{"manager meets manager", manager, "", identity.RoleManager, ""},
		{"user below manager", user, "", identity.RoleManager, apperr.KindAuthorization},
		{"owner beats role", user, "u", identity.RoleAdmin, ""},
		{"manager not owner, admin required", manager, "u", identity.RoleAdmin, apperr.KindAuthorization},
		{"any authenticated", user, "", "", ""},
	}
	for _, tc := range cases {
		err := Authorize(tc.id, tc.owner, tc.required)
		if tc.want == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if err == nil || apperr.KindOf(err) != tc.want {
			t.Fatalf("%s: got %v, want kind %s", tc.name, err, tc.want)
		}
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(id *identity.Identity) *gin.Engine {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			if id != nil {
				SetIdentity(c, *id)
			}
			c.Next()
		})
		router.GET("/api/admin/things", RequireRole(identity.RoleAdmin, false), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		return router
	}

	cases := []struct {
		id   *identity.Identity
		want int
	}{
		{nil, http.StatusUnauthorized},
		{&identity.Identity{UserID: "u", Role: identity.RoleUser}, http.StatusForbidden},
		{&identity.Identity{UserID: "a", Role: identity.RoleAdmin}, http.StatusNoContent},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		newRouter(tc.id).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/things", nil))
		if rec.Code != tc.want {
			t.Fatalf("identity %+v: status = %d, want %d", tc.id, rec.Code, tc.want)
		}
	}
}
