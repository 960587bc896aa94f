package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/models"
)

// BearerAuth — Authorization: Bearer <token>. Пустой token закрывает доступ целиком.
func BearerAuth(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const p = "Bearer "
			auth := r.Header.Get("Authorization")
			got := strings.TrimPrefix(auth, p)
			if token == "" || !strings.HasPrefix(auth, p) ||
				subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logs.For("auth").
					WithField("reqid", GetRequestID(r)).
					WithField("ip", r.RemoteAddr).
					Warn("unauthorized request")
				w.Header().Set("WWW-Authenticate", `Bearer realm="gate-wireguard"`)
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
