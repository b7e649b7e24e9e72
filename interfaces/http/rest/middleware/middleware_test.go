package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Itzadetunji/mind-map-sub001/pkg/auth"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

type stubVerifier struct {
	tokens map[string]string
}

func (v stubVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	if token == "expired" {
		return nil, auth.ErrExpiredToken
	}
	if user, ok := v.tokens[token]; ok {
		return &auth.Claims{UserID: user}, nil
	}
	return nil, errors.New("unknown token")
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(auth.UserID(r.Context())))
	})
}

func TestAuthenticate(t *testing.T) {
	verifier := stubVerifier{tokens: map[string]string{"good": "user-1"}}
	handler := Authenticate(verifier, pkgerrors.NewErrorHandler(zap.NewNop(), false), zap.NewNop())(echoUser())

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"bearer header", "Bearer good", "", http.StatusOK, "user-1"},
		{"lowercase scheme", "bearer good", "", http.StatusOK, "user-1"},
		{"query token", "", "?access_token=good", http.StatusOK, "user-1"},
		{"missing", "", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"malformed", "Token good", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"expired", "Bearer expired", "", http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"unknown", "Bearer nope", "", http.StatusUnauthorized, "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(DevUserHeader, "dev")
	rec := httptest.NewRecorder()

	Anonymous()(echoUser()).ServeHTTP(rec, req)

	assert.Equal(t, "dev", rec.Body.String())
}

type recordedRequest struct {
	method, route string
	status        int
}

type recordingObserver struct {
	requests []recordedRequest
}

func (o *recordingObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	o.requests = append(o.requests, recordedRequest{method, route, status})
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	observer := &recordingObserver{}
	r := chi.NewRouter()
	r.Use(Metrics(observer))
	r.Use(Logger(zap.NewNop()))
	r.Get("/sessions/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))

	require.Len(t, observer.requests, 1)
	assert.Equal(t, recordedRequest{http.MethodGet, "/sessions/{sessionID}", http.StatusTeapot}, observer.requests[0])
}

func TestLogger_SessionFieldsAndProbeLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := chi.NewRouter()
	r.Use(Logger(zap.New(core)))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {})
	r.Post("/sessions/{sessionID}/flush", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/sessions/s1/flush", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)

	fields := entries[1].ContextMap()
	assert.Equal(t, "s1", fields["sessionID"])
	assert.Equal(t, "/sessions/{sessionID}/flush", fields["route"])
	assert.EqualValues(t, http.StatusBadGateway, fields["status"])
}
