package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gate-sso/gate-wireguard/internal/controller"
	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/middleware"
	"github.com/gate-sso/gate-wireguard/internal/models"
	"github.com/gate-sso/gate-wireguard/internal/repo"
	"github.com/gate-sso/gate-wireguard/internal/vpn/wireguard"
)

// writeError переводит доменные ошибки в problem+json.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *repo.ValidationError
	switch {
	case errors.As(err, &verr):
		models.WriteProblem(w, http.StatusUnprocessableEntity, "Validation Failed", verr.Error(),
			map[string]any{"fields": verr.Fields})
	case errors.Is(err, repo.ErrNotFound):
		models.WriteProblem(w, http.StatusNotFound, "Not Found", err.Error(), nil)
	case errors.Is(err, repo.ErrAllocationExhausted):
		models.WriteProblem(w, http.StatusConflict, "Address Pool Exhausted", err.Error(), nil)
	case errors.Is(err, repo.ErrConflict):
		models.WriteProblem(w, http.StatusConflict, "Conflict", err.Error(), nil)
	case errors.Is(err, wireguard.ErrNoAllocation):
		models.WriteProblem(w, http.StatusConflict, "No IP Allocation", err.Error(), nil)
	case errors.Is(err, wireguard.ErrExternalTool):
		logs.For("admin").WithField("reqid", middleware.GetRequestID(r)).WithError(err).Error("key generation failed")
		models.WriteProblem(w, http.StatusBadGateway, "Key Generation Failed", err.Error(), nil)
	default:
		reqid := middleware.GetRequestID(r)
		logs.For("admin").WithField("reqid", reqid).WithError(err).Error("request failed")
		title := "Internal Server Error"
		if controller.IsPublishError(err) {
			title = "Publish Failed"
		}
		models.WriteProblem(w, http.StatusInternalServerError, title,
			"unexpected server error (see logs by reqid)", map[string]any{"reqid": reqid})
	}
}

// writeResult отвечает на мутацию. Если данные сохранены, но конфиг не опубликован,
// ответ остаётся успешным и получает поле publish_error.
func writeResult(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil && !controller.IsPublishError(err) {
		writeError(w, r, err)
		return
	}
	if err == nil {
		if v == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		models.WriteJSON(w, status, v)
		return
	}

	logs.For("admin").WithField("reqid", middleware.GetRequestID(r)).WithError(err).Warn("mutation saved, publish failed")
	body := map[string]any{}
	if v != nil {
		raw, mErr := json.Marshal(v)
		if mErr == nil {
			_ = json.Unmarshal(raw, &body)
		}
	}
	body["publish_error"] = err.Error()
	if status == http.StatusNoContent {
		status = http.StatusOK
	}
	models.WriteJSON(w, status, body)
}
