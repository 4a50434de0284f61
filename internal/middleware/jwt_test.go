package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan-licences/internal/model"
)

func newRouter(t *Tokens, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	allow := func(ctx context.Context, email string) (bool, error) {
		for _, a := range allowed {
			if a == email {
				return true, nil
			}
		}
		return false, nil
	}
	r := gin.New()
	api := r.Group("/api", JWTAuth(t, allow))
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": c.GetString(KeyEmail), "id": c.GetInt(KeyOperatorID)})
	})
	api.DELETE("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	tokens := NewTokens("test-secret", 7*24*time.Hour)
	r := newRouter(tokens, "op@club.fr")

	tok, err := tokens.Issue(&model.Operator{ID: 4, Email: "op@club.fr"})
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/api/me", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"email":"op@club.fr","id":4}`, w.Body.String())
	assert.Empty(t, w.Header().Get("X-New-Token"))

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/me", "garbage").Code)

	other, err := NewTokens("other-secret", time.Hour).Issue(&model.Operator{Email: "op@club.fr"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/me", other).Code)
}

func TestJWTAuthDeniesRemovedOperator(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	r := newRouter(tokens, "op@club.fr")

	tok, err := tokens.Issue(&model.Operator{ID: 9, Email: "gone@club.fr"})
	require.NoError(t, err)
	w := do(r, http.MethodGet, "/api/me", tok)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), model.CodePermissionDenied)
}

func TestJWTAuthRenewsShortLivedToken(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	r := newRouter(tokens, "op@club.fr")

	tok, err := tokens.Issue(&model.Operator{ID: 1, Email: "op@club.fr"})
	require.NoError(t, err)
	w := do(r, http.MethodGet, "/api/me", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-New-Token"))
}

func TestRequireAdmin(t *testing.T) {
	tokens := NewTokens("test-secret", 48*time.Hour)
	r := newRouter(tokens, "op@club.fr", "boss@club.fr")

	op, _ := tokens.Issue(&model.Operator{ID: 1, Email: "op@club.fr"})
	boss, _ := tokens.Issue(&model.Operator{ID: 2, Email: "boss@club.fr", Admin: true})

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodDelete, "/api/admin", op).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/api/admin", boss).Code)
}
