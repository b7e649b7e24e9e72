package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name   string
		err    *AppError
		typ    ErrorType
		status int
	}{
		{"validation", NewValidationError("bad"), ErrorTypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("project"), ErrorTypeNotFound, http.StatusNotFound},
		{"conflict", NewConflictError("dup"), ErrorTypeConflict, http.StatusConflict},
		{"unauthorized", NewUnauthorizedError("no"), ErrorTypeUnauthorized, http.StatusUnauthorized},
		{"forbidden", NewForbiddenError("no"), ErrorTypeForbidden, http.StatusForbidden},
		{"internal", NewInternalError("oops"), ErrorTypeInternal, http.StatusInternalServerError},
		{"timeout", NewTimeoutError("save"), ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"unavailable", NewUnavailableError("store"), ErrorTypeUnavailable, http.StatusServiceUnavailable},
		{"database", NewDatabaseError("update", cause), ErrorTypeDatabase, http.StatusBadGateway},
		{"external", NewExternalError("supabase", cause), ErrorTypeExternal, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.NotEmpty(t, tt.err.StackTrace)
			assert.True(t, IsType(fmt.Errorf("wrapped: %w", tt.err), tt.typ))
		})
	}
}

func TestErrorType_StatusFallback(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, ErrorTypeDatabase.Status())
	assert.Equal(t, http.StatusInternalServerError, ErrorType("UNKNOWN").Status())
}

func TestAppError_Error(t *testing.T) {
	err := NewSaveFailedError(errors.New("connection reset"))

	assert.Equal(t, "EXTERNAL[SAVE_FAILED]: project could not be saved (caused by: connection reset)", err.Error())
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
	assert.True(t, HasCode(fmt.Errorf("flush: %w", err), CodeSaveFailed))
	assert.False(t, HasCode(errors.New("plain"), CodeSaveFailed))
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	sentinel := NewConflictError("closed").WithCode(CodeSessionClosed)
	other := NewConflictError("closed again").WithCode(CodeSessionClosed)
	uncoded := NewConflictError("plain")

	assert.ErrorIs(t, other, sentinel)
	assert.NotErrorIs(t, uncoded, NewConflictError("plain"))
	assert.NotErrorIs(t, NewValidationError("x").WithCode(CodeSessionClosed), sentinel)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))

	original := NewNotFoundError("project")
	wrapped := Wrap(original, "failed to load project")

	assert.True(t, IsNotFound(wrapped))
	assert.Contains(t, GetAppError(wrapped).Message, "failed to load project")
	assert.Equal(t, "project not found", original.Message, "original is not modified")

	plain := Wrapf(errors.New("disk"), "write %d", 3)
	assert.True(t, IsType(plain, ErrorTypeInternal))
	assert.Equal(t, "write 3", GetAppError(plain).Message)
}

func TestFromContext(t *testing.T) {
	err := FromContext("get project", context.DeadlineExceeded)
	assert.True(t, IsType(err, ErrorTypeTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other := errors.New("other")
	assert.Same(t, other, FromContext("get project", other))
}

func TestErrorHandler_Handle(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)

	var got string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.GetReqID(r.Context())
		h.Handle(w, r, NewNotFoundError("session").WithCode(CodeSessionNotFound))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, fmt.Sprintf(`{
		"error": true,
		"type": "NOT_FOUND",
		"message": "session not found",
		"code": "SESSION_NOT_FOUND",
		"request_id": %q
	}`, got), rec.Body.String())
}

func TestErrorHandler_UnknownErrorIsHidden(t *testing.T) {
	rec := httptest.NewRecorder()
	NewErrorHandler(zap.NewNop(), false).Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret detail"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")

	rec = httptest.NewRecorder()
	NewErrorHandler(zap.NewNop(), true).Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret detail"))
	assert.Contains(t, rec.Body.String(), "secret detail")
}

func TestErrorHandler_HandleStatus(t *testing.T) {
	tests := []struct {
		status int
		typ    ErrorType
	}{
		{http.StatusNotFound, ErrorTypeNotFound},
		{http.StatusMethodNotAllowed, ErrorTypeNotFound},
		{http.StatusTooManyRequests, ErrorTypeUnavailable},
		{http.StatusTeapot, ErrorTypeInternal},
	}

	h := NewErrorHandler(zap.NewNop(), false)
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.status, "nope")

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"type":%q`, tt.typ))
		})
	}
}

func TestErrorHandler_MiddlewareRecoversPanics(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	handler := h.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"INTERNAL"`)
}
