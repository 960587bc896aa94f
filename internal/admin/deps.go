package admin

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gate-sso/gate-wireguard/internal/controller"
	"github.com/gate-sso/gate-wireguard/internal/middleware"
	"github.com/gate-sso/gate-wireguard/internal/repo"
)

type Dependencies struct {
	SVC        *controller.Service
	US         *repo.UserStore
	AdminToken string
}

// Attach вешает JSON API администратора на /api за bearer-токеном.
func Attach(r *mux.Router, d Dependencies) {
	h := &Handler{d: d}
	sub := r.PathPrefix("/api").Subrouter()
	sub.Use(middleware.BearerAuth(d.AdminToken))

	// server configuration
	sub.HandleFunc("/configuration", h.ConfigurationGet).Methods(http.MethodGet)
	sub.HandleFunc("/configuration", h.ConfigurationPatch).Methods(http.MethodPatch)
	sub.HandleFunc("/configuration/network_addresses", h.NetworkAddressCreate).Methods(http.MethodPost)
	sub.HandleFunc("/configuration/network_addresses/{id:[0-9]+}", h.NetworkAddressDelete).Methods(http.MethodDelete)

	// users
	sub.HandleFunc("/users", h.UsersList).Methods(http.MethodGet)
	sub.HandleFunc("/users", h.UserCreate).Methods(http.MethodPost)
	sub.HandleFunc("/users/{id:[0-9]+}", h.UserDelete).Methods(http.MethodDelete)
	sub.HandleFunc("/users/{id:[0-9]+}/configs.tar.gz", h.UserBundle).Methods(http.MethodGet)

	// devices
	sub.HandleFunc("/devices", h.DevicesList).Methods(http.MethodGet)
	sub.HandleFunc("/devices", h.DeviceCreate).Methods(http.MethodPost)
	sub.HandleFunc("/devices/next_address", h.DeviceNextAddress).Methods(http.MethodGet)
	sub.HandleFunc("/devices/{id:[0-9]+}", h.DeviceGet).Methods(http.MethodGet)
	sub.HandleFunc("/devices/{id:[0-9]+}", h.DevicePatch).Methods(http.MethodPatch)
	sub.HandleFunc("/devices/{id:[0-9]+}", h.DeviceDelete).Methods(http.MethodDelete)
	sub.HandleFunc("/devices/{id:[0-9]+}/config", h.DeviceConfig).Methods(http.MethodGet)
	sub.HandleFunc("/devices/{id:[0-9]+}/qr.png", h.DeviceQR).Methods(http.MethodGet)

	// ручная пересборка конфига на диске
	sub.HandleFunc("/publish", h.Publish).Methods(http.MethodPost)
}
