package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

// APIKeyHeader carries admin API keys.
const APIKeyHeader = "api_key"

// SecurityHandler authenticates customers by bearer token and admins by
// HMAC-hashed API key.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
	tokens  *auth.Tokens
}

// NewSecurityHandler creates a SecurityHandler.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte, tokens *auth.Tokens) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
		tokens:  tokens,
	}
}

// RequireUser rejects requests without a valid bearer token and stores the
// token subject as the user ID.
func (s *SecurityHandler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		ctx := zctx.With(auth.WithUserID(r.Context(), userID), zap.String("user_id", userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAPIKey rejects requests whose API key is unknown (401) or lacks
// scope (403).
func (s *SecurityHandler) RequireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := auth.VerifyAPIKey(r.Context(), s.apikeys, s.pepper, r.Header.Get(APIKeyHeader))
			if err != nil {
				if !errors.Is(err, auth.ErrKeyNotFound) {
					zctx.From(r.Context()).Error("Verify API key", zap.Error(err))
				}
				writeMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !info.HasScope(scope) {
				writeMessage(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}

			ctx := zctx.With(auth.WithAPIKey(r.Context(), info), zap.String("api_key", info.Name))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
