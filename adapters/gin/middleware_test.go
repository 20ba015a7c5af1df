package authgin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/bearerkit/identity"
)

type staticResolver struct {
	user identity.User
	err  error
	seen string
}

func (s *staticResolver) Resolve(_ context.Context, authorization string) (identity.User, error) {
	s.seen = authorization
	return s.user, s.err
}

func newRouter(res IdentityResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireIdentity(res, nil), func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no identity in context"})
			return
		}
		c.JSON(http.StatusOK, u)
	})
	return r
}

func TestRequireIdentityPassesHeaderThrough(t *testing.T) {
	res := &staticResolver{user: identity.User{ID: 7, Subject: "idp|abc", Email: "a@x.com"}}
	r := newRouter(res)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if res.seen != "Bearer tok-1" {
		t.Errorf("resolver saw header %q", res.seen)
	}
}

func TestRequireIdentityRejectsWithBare401(t *testing.T) {
	res := &staticResolver{err: errors.New("signature invalid for key 3 of tenant x")}
	r := newRouter(res)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	// Failure detail stays in the logs, never in the response.
	if body := w.Body.String(); body != `{"error":"unauthorized"}` {
		t.Errorf("body = %s", body)
	}
}

func TestCurrentUserAbsentWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := CurrentUser(c); ok {
		t.Error("expected no identity on a bare context")
	}
}

func TestRequestIDAssigned(t *testing.T) {
	res := &staticResolver{user: identity.User{ID: 1, Subject: "s"}}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var gotID string
	r.GET("/id", RequireIdentity(res, nil), func(c *gin.Context) {
		gotID = RequestID(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if gotID == "" {
		t.Error("request id not assigned")
	}
}
