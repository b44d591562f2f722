package bootstrap

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpHandler "peacepad-signaling/internal/handler/http"
	wsHandler "peacepad-signaling/internal/handler/websocket"
	"peacepad-signaling/internal/hub"
	"peacepad-signaling/internal/repository/mocks"
	"peacepad-signaling/internal/service"
)

func newTestRouter(t *testing.T) (*gin.Engine, *mocks.PresenceRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &Config{
		KeyPrefix:       "test:",
		JWTSecret:       "router-secret",
		AllowedOrigins:  []string{"https://app.example"},
		RateLimitMax:    100,
		RateLimitWindow: time.Minute,
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	sessionRepo := new(mocks.SessionRepository)
	presence := new(mocks.PresenceRepository)
	h := hub.NewHub(hub.NewRegistry(), sessionRepo, nil)

	router := newRouter(cfg, log, client, handlers{
		sessions:  httpHandler.NewSessionHandler(service.NewSessionService(sessionRepo, h)),
		calls:     httpHandler.NewCallHandler(service.NewCallService(new(mocks.CallRepository), h)),
		presence:  httpHandler.NewPresenceHandler(presence),
		websocket: wsHandler.NewWebSocketHandler(h, cfg.AllowedOrigins, 0),
	})
	return router, presence
}

func signedToken(t *testing.T, participantID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": participantID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("router-secret"))
	require.NoError(t, err)
	return s
}

func TestRouter_Ping(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestRouter_APIRequiresToken(t *testing.T) {
	router, presence := newTestRouter(t)
	presence.On("ListOnline", mock.Anything).Return([]string{"p1"}, nil).Once()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/presence", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "p1"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	presence.AssertExpectations(t)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/calls", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsConfig_Wildcard(t *testing.T) {
	c := corsConfig([]string{"https://a.example", "*"})
	assert.True(t, c.AllowAllOrigins)
	assert.Empty(t, c.AllowOrigins)
	assert.False(t, c.AllowCredentials)
}
