package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-middleware"

func init() {
	gin.SetMode(gin.TestMode)
}

func generateTestToken(claims jwt.MapClaims, secret string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(secret))
	return tokenString
}

func setupTestRouter(config *JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(JWTMiddleware(config))
	router.GET("/protected", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		name, _ := GetName(c)
		email, _ := GetEmail(c)
		role, _ := GetRole(c)
		callerID, _ := c.Request.Context().Value(logger.CallerIDKey).(string)
		c.JSON(http.StatusOK, gin.H{
			"user_id":   userID,
			"name":      name,
			"email":     email,
			"role":      role,
			"caller_id": callerID,
		})
	})
	router.GET("/admin", RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func doGet(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	config := &JWTConfig{
		Secret:    testSecret,
		Issuer:    "eventgate",
		SkipPaths: []string{"/health"},
	}
	valid := func(extra jwt.MapClaims) string {
		claims := jwt.MapClaims{
			"user_id": "validator-1",
			"name":    "Gate A",
			"email":   "gate@example.com",
			"role":    "Validator",
			"iss":     "eventgate",
			"exp":     time.Now().Add(time.Hour).Unix(),
		}
		for k, v := range extra {
			if v == nil {
				delete(claims, k)
				continue
			}
			claims[k] = v
		}
		return "Bearer " + generateTestToken(claims, testSecret)
	}

	tests := []struct {
		name       string
		header     string
		path       string
		wantStatus int
	}{
		{"valid token", valid(nil), "/protected", http.StatusOK},
		{"missing authorization header", "", "/protected", http.StatusUnauthorized},
		{"invalid authorization header format", "InvalidFormat", "/protected", http.StatusUnauthorized},
		{"empty token after Bearer", "Bearer ", "/protected", http.StatusUnauthorized},
		{"expired token", valid(jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}), "/protected", http.StatusUnauthorized},
		{"wrong issuer", valid(jwt.MapClaims{"iss": "someone-else"}), "/protected", http.StatusUnauthorized},
		{"missing user_id", valid(jwt.MapClaims{"user_id": nil}), "/protected", http.StatusUnauthorized},
		{"malformed token", "Bearer not-a-valid-jwt-token", "/protected", http.StatusUnauthorized},
		{
			"invalid secret",
			"Bearer " + generateTestToken(jwt.MapClaims{"user_id": "u", "iss": "eventgate", "exp": time.Now().Add(time.Hour).Unix()}, "wrong-secret"),
			"/protected",
			http.StatusUnauthorized,
		},
		{"skip path", "", "/health", http.StatusOK},
		{"role gate rejects validator", valid(nil), "/admin", http.StatusForbidden},
		{"role gate admits admin", valid(jwt.MapClaims{"role": "admin"}), "/admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doGet(setupTestRouter(config), tt.path, tt.header)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestJWTMiddleware_ClaimsExtracted(t *testing.T) {
	config := &JWTConfig{Secret: testSecret}
	token := generateTestToken(jwt.MapClaims{
		"user_id": "validator-9",
		"name":    "North Gate",
		"email":   "north@example.com",
		"role":    "VALIDATOR",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	w := doGet(setupTestRouter(config), "/protected", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validator-9", body["user_id"])
	assert.Equal(t, "North Gate", body["name"])
	assert.Equal(t, "north@example.com", body["email"])
	assert.Equal(t, "validator", body["role"])
	assert.Equal(t, "validator-9", body["caller_id"])
}

func TestRequireRole_WithoutJWT(t *testing.T) {
	router := gin.New()
	router.GET("/admin", RequireRole("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doGet(router, "/admin", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
