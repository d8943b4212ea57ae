package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/tokenstore"
)

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

type failingTokenStore struct{ tokenstore.MemoryStore }

func (failingTokenStore) Token(context.Context) (string, error) { return "", assert.AnError }

func TestAuthInterceptor_setsBearer(t *testing.T) {
	logger, logs := newObservedLogger()
	intercept := AuthInterceptor(tokenstore.NewMemoryStore("tok-123"), logger)

	req := httptest.NewRequest(http.MethodGet, "/brands", nil)
	require.NoError(t, intercept(req))
	assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
	assert.Equal(t, 0, logs.Len())
}

func TestAuthInterceptor_missingTokenProceeds(t *testing.T) {
	logger, logs := newObservedLogger()
	intercept := AuthInterceptor(tokenstore.NewMemoryStore(""), logger)

	req := httptest.NewRequest(http.MethodGet, "/brands", nil)
	require.NoError(t, intercept(req))
	assert.Empty(t, req.Header.Get("Authorization"))
	require.Equal(t, 1, logs.Len(), "exactly one diagnostic line")
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestAuthInterceptor_storeErrorProceeds(t *testing.T) {
	logger, logs := newObservedLogger()
	intercept := AuthInterceptor(&failingTokenStore{}, logger)

	req := httptest.NewRequest(http.MethodGet, "/brands", nil)
	require.NoError(t, intercept(req))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, 1, logs.Len())
}

func TestAuthInterceptor_expiredTokenWarns(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	logger, logs := newObservedLogger()
	req := httptest.NewRequest(http.MethodGet, "/brands", nil)
	require.NoError(t, AuthInterceptor(tokenstore.NewMemoryStore(token), logger)(req))

	assert.Equal(t, "Bearer "+token, req.Header.Get("Authorization"), "expired tokens are still sent")
	assert.Equal(t, 1, logs.FilterMessage("bearer token has expired").Len())
}

func TestAuthInterceptor_stripsHeaderInjection(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, AuthInterceptor(tokenstore.NewMemoryStore("abc\r\nX-Evil: 1"), nil)(req))
	assert.Equal(t, "Bearer abcX-Evil: 1", req.Header.Get("Authorization"))
}

func TestRequestIDInterceptor(t *testing.T) {
	t.Run("generates uuid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, RequestIDInterceptor()(req))
		_, err := uuid.Parse(req.Header.Get("X-Request-Id"))
		assert.NoError(t, err)
	})

	t.Run("uses context id", func(t *testing.T) {
		ctx := observability.WithRequestID(context.Background(), "req-42")
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		require.NoError(t, RequestIDInterceptor()(req))
		assert.Equal(t, "req-42", req.Header.Get("X-Request-Id"))
	})
}

func TestLoggingInterceptor(t *testing.T) {
	logger, logs := newObservedLogger()
	li := NewLoggingInterceptor(logger, "phone")
	req := httptest.NewRequest(http.MethodPost, "/delivery_panel/profile", nil)

	li.OnResponse(req, &Response{StatusCode: 200}, 5*time.Millisecond)
	li.OnError(req, &Response{
		StatusCode: 422,
		Body:       []byte(`{"detail":"bad","phone":"555","token":"t"}`),
	}, &ResponseError{StatusCode: 422}, time.Millisecond)
	li.OnError(req, &Response{StatusCode: 503, Body: []byte("oops")}, &ResponseError{StatusCode: 503}, time.Millisecond)
	li.OnError(req, nil, assert.AnError, time.Millisecond)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(200), entries[0].ContextMap()["status"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	payload, ok := entries[1].ContextMap()["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bad", payload["detail"])
	assert.Equal(t, "[REDACTED]", payload["phone"])
	assert.Equal(t, "[REDACTED]", payload["token"])

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	_, hasPayload := entries[2].ContextMap()["payload"]
	assert.False(t, hasPayload, "non-JSON bodies are not logged")

	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestClient_withInterceptorsEndToEnd(t *testing.T) {
	var auth, reqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		reqID = r.Header.Get("X-Request-Id")
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL},
		WithRequestInterceptor(AuthInterceptor(tokenstore.NewMemoryStore("tok"), nil)),
		WithRequestInterceptor(RequestIDInterceptor()),
		WithResponseInterceptor(NewLoggingInterceptor(nil)),
	)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Path: "/health"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
	assert.NotEmpty(t, reqID)
}
