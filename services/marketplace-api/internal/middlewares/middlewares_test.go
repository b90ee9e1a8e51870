package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kithly/marketplace/pkg/auth"
)

type fakeVerifier map[string]auth.Identity

func (f fakeVerifier) Verify(tok string) (auth.Identity, bool) {
	id, ok := f[tok]
	return id, ok
}

var tokens = fakeVerifier{
	"buyer-token": {UserID: "u-1", Role: auth.RoleBuyer},
	"owner-token": {UserID: "u-2", Role: auth.RoleShopOwner},
}

func serve(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func whoami(c *gin.Context) {
	id, ok := IdentityFrom(c)
	if !ok {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, id.UserID)
}

func TestAuthenticateAndRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/any", Authenticate(tokens), whoami)
	r.GET("/owner", Authenticate(tokens), RequireRole(auth.RoleShopOwner), whoami)
	r.GET("/optional", OptionalAuth(tokens), whoami)
	r.GET("/unguarded-role", RequireRole(auth.RoleBuyer), whoami)

	cases := []struct {
		path, auth string
		code       int
		body       string
	}{
		{"/any", "", http.StatusUnauthorized, ""},
		{"/any", "Bearer nope", http.StatusUnauthorized, ""},
		{"/any", "buyer-token", http.StatusUnauthorized, ""},
		{"/any", "Bearer buyer-token", http.StatusOK, "u-1"},
		{"/owner", "Bearer buyer-token", http.StatusForbidden, ""},
		{"/owner", "Bearer owner-token", http.StatusOK, "u-2"},
		{"/optional", "", http.StatusOK, "anonymous"},
		{"/optional", "Bearer nope", http.StatusOK, "anonymous"},
		{"/optional", "Bearer owner-token", http.StatusOK, "u-2"},
		{"/unguarded-role", "", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		rec := serve(r, http.MethodGet, tc.path, map[string]string{"Authorization": tc.auth})
		assert.Equal(t, tc.code, rec.Code, "%s with %q", tc.path, tc.auth)
		if tc.body != "" {
			assert.Equal(t, tc.body, rec.Body.String())
		}
	}
}

type scriptedLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *scriptedLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	deny := &scriptedLimiter{allow: false}
	r := gin.New()
	r.POST("/login", RateLimit(deny, "login"), ok)
	rec := serve(r, http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, []string{"login:192.0.2.1"}, deny.keys)

	broken := &scriptedLimiter{err: errors.New("redis down")}
	r = gin.New()
	r.POST("/login", RateLimit(broken, "login"), ok)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/login", nil).Code, "fails open")

	r = gin.New()
	r.POST("/login", RateLimit(nil, "login"), ok)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/login", nil).Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("http://localhost:5173/, https://kithly.com"))
	r.GET("/shops", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(r, http.MethodGet, "/shops", map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(r, http.MethodGet, "/shops", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(r, http.MethodOptions, "/shops", map[string]string{
		"Origin":                        "https://kithly.com",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, "https://kithly.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Less(t, rec.Code, 300)
}
