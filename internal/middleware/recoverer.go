package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/models"
)

// Recoverer превращает панику обработчика в 500 problem+json со ссылкой на reqid.
// http.ErrAbortHandler пробрасывается дальше: им обработчик сам обрывает ответ.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			reqid := GetRequestID(r)
			logs.For("http").WithFields(logrus.Fields{
				"reqid":  reqid,
				"method": r.Method,
				"path":   r.URL.Path,
				"panic":  rec,
				"stack":  string(debug.Stack()),
			}).Error("handler panicked")

			models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error",
				"unexpected server error, look up reqid in the logs", map[string]any{"reqid": reqid})
		}()
		next.ServeHTTP(w, r)
	})
}
