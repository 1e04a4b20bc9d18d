package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityflow/neurotraff/config"
	"cityflow/neurotraff/services"
)

func newRouter(auth *services.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SetupCORS(config.CORSConfig{AllowedOrigins: "http://dash.test"}))
	r.GET("/private", RequireAuth(auth), func(c *gin.Context) {
		claims := c.MustGet(ClaimsKey).(*services.Claims)
		c.String(http.StatusOK, claims.Email)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	auth := services.NewAuthService(config.JWTConfig{Secret: "s", ExpiryHours: 1}, config.OperatorConfig{})
	token, err := auth.GenerateToken("ops@city.flow", services.RoleOperator)
	require.NoError(t, err)
	r := newRouter(auth)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "ops@city.flow", w.Body.String())
			}
		})
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	auth := services.NewAuthService(config.JWTConfig{Secret: "s", ExpiryHours: 1}, config.OperatorConfig{})
	r := newRouter(auth)

	req := httptest.NewRequest(http.MethodOptions, "/private", nil)
	req.Header.Set("Origin", "http://dash.test")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://dash.test", w.Header().Get("Access-Control-Allow-Origin"))
}
