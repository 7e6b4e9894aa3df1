package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/freshcart/internal/models"
)

func authedRouter(t *testing.T, roles ...models.Role) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/", Middleware(testSecret))
	if len(roles) > 0 {
		group.Use(RequireRole(roles...))
	}
	group.GET("/whoami", func(c *gin.Context) {
		p, _ := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": p.ID, "role": p.Role})
	})
	return router
}

func doRequest(router *gin.Engine, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	token, err := MintToken(testSecret, Principal{ID: uuid.New(), Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	w := doRequest(authedRouter(t), "Bearer "+token)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	w := doRequest(authedRouter(t), "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareRejectsGarbageToken(t *testing.T) {
	w := doRequest(authedRouter(t), "Bearer not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	token, err := MintToken(testSecret, Principal{ID: uuid.New(), Role: models.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	admin := authedRouter(t, models.RoleAdmin)
	w := doRequest(admin, "Bearer "+token)
	require.Equal(t, http.StatusForbidden, w.Code)

	either := authedRouter(t, models.RoleAdmin, models.RoleCustomer)
	w = doRequest(either, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
}
