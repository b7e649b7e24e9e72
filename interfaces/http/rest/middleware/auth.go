package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/pkg/auth"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

// DevUserHeader names the caller when authentication is disabled.
const DevUserHeader = "X-User-ID"

// Authenticate verifies the bearer token and stores the caller in the request
// context. Browsers cannot set headers on WebSocket upgrades, so an
// access_token query parameter is accepted as well.
func Authenticate(verifier auth.Verifier, errs *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				errs.Handle(w, r, pkgerrors.NewUnauthorizedError("missing authorization header").WithCode(pkgerrors.CodeMissingToken))
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debug("Token rejected", zap.Error(err))
				code := "INVALID_TOKEN"
				msg := "invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					code, msg = "TOKEN_EXPIRED", "token has expired"
				}
				errs.Handle(w, r, pkgerrors.NewUnauthorizedError(msg).WithCode(code))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), auth.UserFromClaims(claims))))
		})
	}
}

// Anonymous is used when authentication is disabled. The caller is taken
// from DevUserHeader, if present.
func Anonymous() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.User{ID: r.Header.Get(DevUserHeader)}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}
