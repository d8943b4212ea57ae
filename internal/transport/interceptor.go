package transport

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/tokenstore"
)

// AuthInterceptor attaches "Authorization: Bearer <token>" from the token
// store. A missing or unreadable token is logged and the request proceeds
// unauthenticated; the backend decides what to do with it.
func AuthInterceptor(tokens tokenstore.Store, logger *zap.Logger) RequestInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(req *http.Request) error {
		log := observability.ContextLogger(req.Context(), logger)

		token, err := tokens.Token(req.Context())
		if err != nil {
			log.Warn("bearer token unavailable, sending unauthenticated request",
				zap.String("path", req.URL.Path),
				zap.Error(err),
			)
			return nil
		}
		if token == "" {
			log.Warn("no bearer token stored, sending unauthenticated request",
				zap.String("path", req.URL.Path),
			)
			return nil
		}

		if info, err := tokenstore.Inspect(token); err == nil && info.Expired(time.Now()) {
			log.Warn("bearer token has expired",
				zap.String("subject", info.Subject),
				zap.Time("expired_at", info.ExpiresAt),
			)
		}
		req.Header.Set("Authorization", "Bearer "+sanitizeHeader(token))
		return nil
	}
}

// RequestIDInterceptor sets X-Request-Id from the context, generating a new
// id when none is present.
func RequestIDInterceptor() RequestInterceptor {
	return func(req *http.Request) error {
		id := observability.RequestIDFrom(req.Context())
		if id == "" {
			id = uuid.NewString()
		}
		req.Header.Set("X-Request-Id", sanitizeHeader(id))
		return nil
	}
}

// LoggingInterceptor logs every completed call. Errors are not transformed.
type LoggingInterceptor struct {
	logger          *zap.Logger
	sensitiveFields []string
}

// NewLoggingInterceptor creates a LoggingInterceptor. sensitiveFields are
// redacted from failure payloads in addition to the default set.
func NewLoggingInterceptor(logger *zap.Logger, sensitiveFields ...string) *LoggingInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingInterceptor{logger: logger, sensitiveFields: sensitiveFields}
}

func (l *LoggingInterceptor) OnResponse(req *http.Request, resp *Response, elapsed time.Duration) {
	observability.ContextLogger(req.Context(), l.logger).Info("backend request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed),
	)
}

func (l *LoggingInterceptor) OnError(req *http.Request, resp *Response, err error, elapsed time.Duration) {
	log := observability.ContextLogger(req.Context(), l.logger)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("duration", elapsed),
		zap.Error(err),
	}
	if resp == nil {
		log.Error("backend request failed", fields...)
		return
	}

	fields = append(fields, zap.Int("status", resp.StatusCode))
	var payload map[string]any
	if json.Unmarshal(resp.Body, &payload) == nil {
		fields = append(fields, zap.Any("payload", observability.RedactBody(payload, l.sensitiveFields)))
	}
	if resp.StatusCode >= 500 {
		log.Error("backend request failed", fields...)
		return
	}
	log.Warn("backend request rejected", fields...)
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
