package middleware

import (
	"crypto/subtle"
	"net/http"

	"tradecore/pkg/crypto"
)

// BasicAuth - middleware аутентификации оператора.
//
// Мутирующие эндпоинты (смена риск-профиля, ввод в строй, остановка)
// защищаются basic auth. Пароль сверяется с bcrypt-хешем из конфигурации.
// При пустых учётных данных в конфигурации защита отключена (dev-режим).
func BasicAuth(user, passHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user == "" || passHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			reqUser, reqPass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(reqUser), []byte(user)) != 1 ||
				!crypto.CheckPasswordMatch(reqPass, passHash) {
				w.Header().Set("WWW-Authenticate", `Basic realm="tradecore"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
