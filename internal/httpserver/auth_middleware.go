package httpserver

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/security"
)

type contextKey string

const accountContextKey contextKey = "currentAccount"

// WithAccount returns a new context carrying the authenticated account.
func WithAccount(ctx context.Context, account *domain.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// CurrentAccount extracts the authenticated account from the request, if any.
func CurrentAccount(r *http.Request) *domain.Account {
	if v := r.Context().Value(accountContextKey); v != nil {
		if a, ok := v.(*domain.Account); ok {
			return a
		}
	}
	return nil
}

// AuthMiddleware validates the Bearer token and attaches the account to the
// context. The token subject is the account's canonical key.
func AuthMiddleware(tokens *security.TokenService, directory domain.DirectoryRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			key, err := tokens.Parse(tokenStr)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			account, err := directory.AccountByKey(r.Context(), key)
			if err != nil {
				log.Printf("AuthMiddleware: AccountByKey error for %q: %v", key, err)
				http.Error(w, "account not found", http.StatusUnauthorized)
				return
			}
			if account == nil {
				http.Error(w, "account not found", http.StatusUnauthorized)
				return
			}

			ctx := WithAccount(r.Context(), account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
