package middleware

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// RequireAPIKey возвращает middleware, проверяющее заголовок x-api-key
// против bcrypt-хэша ключа. Пустой хэш = auth выключен (с предупреждением
// при старте, не здесь).
func RequireAPIKey(logger *zap.Logger, apiKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKeyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("x-api-key")
			if key == "" {
				http.Error(w, "x-api-key header is required", http.StatusUnauthorized)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(key)); err != nil {
				logger.Warn("invalid api key attempt",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
