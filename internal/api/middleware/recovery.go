package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"tradecore/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers.
// Перехватывает panic, логирует stack trace и возвращает 500,
// не роняя сервер целиком.
func Recovery(logger *utils.Logger) func(http.Handler) http.Handler {
	l := logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					l.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
