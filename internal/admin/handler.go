package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/gate-sso/gate-wireguard/internal/controller"
	"github.com/gate-sso/gate-wireguard/internal/models"
	"github.com/gate-sso/gate-wireguard/internal/repo"
	"github.com/gate-sso/gate-wireguard/internal/vpn/wireguard"
)

const maxBody = 1 << 20

type Handler struct {
	d Dependencies
}

// ---------- Configuration ----------

func (h *Handler) ConfigurationGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.d.SVC.Configuration(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) ConfigurationPatch(w http.ResponseWriter, r *http.Request) {
	var patch repo.ConfigurationPatch
	if !decode(w, r, &patch) {
		return
	}
	cfg, err := h.d.SVC.UpdateConfiguration(r.Context(), patch)
	writeResult(w, r, http.StatusOK, cfg, err)
}

func (h *Handler) NetworkAddressCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		NetworkAddress string `json:"network_address"`
	}
	if !decode(w, r, &in) {
		return
	}
	na, err := h.d.SVC.AddNetworkAddress(r.Context(), in.NetworkAddress)
	writeResult(w, r, http.StatusCreated, na, err)
}

func (h *Handler) NetworkAddressDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	writeResult(w, r, http.StatusNoContent, nil, h.d.SVC.RemoveNetworkAddress(r.Context(), id))
}

// ---------- Users ----------

func (h *Handler) UsersList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.d.US.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) UserCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email  string `json:"email"`
		Name   string `json:"name"`
		Admin  bool   `json:"admin"`
		Active *bool  `json:"active"`
	}
	if !decode(w, r, &in) {
		return
	}
	u := &models.User{Email: in.Email, Name: in.Name, Admin: in.Admin, Active: true}
	if in.Active != nil {
		u.Active = *in.Active
	}
	if err := h.d.US.Create(r.Context(), u); err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) UserDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	writeResult(w, r, http.StatusNoContent, nil, h.d.SVC.DeleteUser(r.Context(), id))
}

func (h *Handler) UserBundle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	name, archive, sum, err := h.d.SVC.UserBundle(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Checksum-Sha256", sum)
	w.Header().Set("Cache-Control", "no-store")
	models.WriteAttachment(w, name, "application/gzip", archive)
}

// ---------- Devices ----------

func (h *Handler) DevicesList(w http.ResponseWriter, r *http.Request) {
	nodesOnly := false
	if v := r.URL.Query().Get("nodes"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "nodes must be a boolean", nil)
			return
		}
		nodesOnly = b
	}
	rows, err := h.d.SVC.ListDevices(r.Context(), nodesOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) DeviceCreate(w http.ResponseWriter, r *http.Request) {
	var in controller.DeviceInput
	if !decode(w, r, &in) {
		return
	}
	if in.UserID == 0 {
		writeError(w, r, &repo.ValidationError{Fields: map[string]string{"user_id": "is required"}})
		return
	}
	dev, err := h.d.SVC.CreateDevice(r.Context(), in)
	writeResult(w, r, http.StatusCreated, dev, err)
}

func (h *Handler) DeviceNextAddress(w http.ResponseWriter, r *http.Request) {
	ip, err := h.d.SVC.NextAddress(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]string{"ip_address": ip})
}

func (h *Handler) DeviceGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dev, err := h.d.SVC.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, dev)
}

func (h *Handler) DevicePatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch repo.DevicePatch
	if !decode(w, r, &patch) {
		return
	}
	dev, err := h.d.SVC.UpdateDevice(r.Context(), id, patch)
	writeResult(w, r, http.StatusOK, dev, err)
}

func (h *Handler) DeviceDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	writeResult(w, r, http.StatusNoContent, nil, h.d.SVC.DeleteDevice(r.Context(), id))
}

func (h *Handler) DeviceConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	name, text, err := h.d.SVC.ClientConfig(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteAttachment(w, name, "text/plain; charset=utf-8", []byte(text))
}

func (h *Handler) DeviceQR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	size := wireguard.DefaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 2048 {
			models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "size must be between 64 and 2048", nil)
			return
		}
		size = n
	}
	png, err := h.d.SVC.ClientQR(r.Context(), id, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	models.WriteAttachment(w, "", "image/png", png)
}

// ---------- Publish ----------

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	res, err := h.d.SVC.Reconcile(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, res)
}

// ---------- utils ----------

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			writeError(w, r, &repo.ValidationError{Fields: map[string]string{
				typeErr.Field: "must be " + typeErr.Type.String(),
			}})
			return false
		}
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("invalid JSON body: %v", err), nil)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid id", nil)
		return 0, false
	}
	return uint(id), true
}
