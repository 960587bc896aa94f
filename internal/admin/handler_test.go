package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gate-sso/gate-wireguard/internal/controller"
	"github.com/gate-sso/gate-wireguard/internal/models"
	"github.com/gate-sso/gate-wireguard/internal/publish"
	"github.com/gate-sso/gate-wireguard/internal/repo"
	"github.com/gate-sso/gate-wireguard/internal/testutil"
)

const token = "test-token"

type api struct {
	t      *testing.T
	router *mux.Router
	user   *models.User
}

func newAPI(t *testing.T, pub controller.Publisher) *api {
	t.Helper()
	d := testutil.NewDB(t)
	keys := &testutil.FakeKeys{}
	if pub == nil {
		pub = publish.New(filepath.Join(t.TempDir(), "wireguard"))
	}
	users := repo.NewUserStore(d)
	svc := &controller.Service{
		Configs:   repo.NewConfigStore(d, keys),
		Devices:   repo.NewDeviceStore(d, repo.NewAllocator(d)),
		Users:     users,
		Keys:      keys,
		Publisher: pub,
	}
	r := mux.NewRouter()
	Attach(r, Dependencies{SVC: svc, US: users, AdminToken: token})
	return &api{t: t, router: r, user: testutil.CreateUser(t, d, "alice@example.com", "Alice")}
}

func (a *api) do(method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func (a *api) createDevice(desc string) map[string]any {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/devices",
		`{"user_id": `+jsonNum(a.user.ID)+`, "description": "`+desc+`"}`)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(a.t, rec)
}

func jsonNum(n uint) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestRequiresToken(t *testing.T) {
	a := newAPI(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/configuration", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfigurationGetAndPatch(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodGet, "/api/configuration", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeBody(t, rec)
	assert.Equal(t, "10.42.5.1", cfg["server_vpn_ip_address"])
	assert.NotContains(t, cfg, "private_key")

	rec = a.do(http.MethodPatch, "/api/configuration", `{"ip_range": "192.168.7.0", "fqdn": "vpn.example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cfg = decodeBody(t, rec)
	assert.Equal(t, "192.168.7.1", cfg["server_vpn_ip_address"])
	assert.Equal(t, "vpn.example.com", cfg["fqdn"])
	assert.NotContains(t, cfg, "publish_error")

	rec = a.do(http.MethodPatch, "/api/configuration", `{"port": 0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = a.do(http.MethodPatch, "/api/configuration", `{"port": "abc"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(http.MethodPatch, "/api/configuration", `{"server_vpn_ip_address": "1.2.3.4"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNetworkAddresses(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodPost, "/api/configuration/network_addresses", `{"network_address": "192.168.1.0/24"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	na := decodeBody(t, rec)

	rec = a.do(http.MethodPost, "/api/configuration/network_addresses", `{"network_address": "192.168.1.0/24"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	id := uint(na["id"].(float64))
	rec = a.do(http.MethodDelete, "/api/configuration/network_addresses/"+jsonNum(id), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(http.MethodDelete, "/api/configuration/network_addresses/"+jsonNum(id), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceLifecycle(t *testing.T) {
	a := newAPI(t, nil)

	dev := a.createDevice("laptop")
	assert.NotContains(t, dev, "private_key")
	alloc := dev["ip_allocation"].(map[string]any)
	assert.Equal(t, "10.42.5.2", alloc["ip_address"])
	id := jsonNum(uint(dev["id"].(float64)))

	rec := a.do(http.MethodPatch, "/api/devices/"+id, `{"node": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["node"])

	a.createDevice("phone")
	rec = a.do(http.MethodGet, "/api/devices?nodes=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var nodes []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	assert.Len(t, nodes, 1)

	rec = a.do(http.MethodGet, "/api/devices/"+id+"/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="gate_vpn_config.conf"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "Address = 10.42.5.2/24\n")

	rec = a.do(http.MethodGet, "/api/devices/"+id+"/qr.png?size=128", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = a.do(http.MethodGet, "/api/devices/"+id+"/qr.png?size=9", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/api/devices/next_address", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.42.5.4", decodeBody(t, rec)["ip_address"])

	rec = a.do(http.MethodDelete, "/api/devices/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(http.MethodGet, "/api/devices/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// освобождённый адрес снова первый в очереди
	rec = a.do(http.MethodGet, "/api/devices/next_address", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.42.5.2", decodeBody(t, rec)["ip_address"])
}

func TestDeviceCreateErrors(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodPost, "/api/devices", `{"description": "x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(http.MethodPost, "/api/devices", `{"user_id": 999}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPatch, "/api/configuration", `{"ip_range": "10.9.0.0/30"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	a.createDevice("only")
	rec = a.do(http.MethodPost, "/api/devices", `{"user_id": `+jsonNum(a.user.ID)+`}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Address Pool Exhausted")

	rec = a.do(http.MethodGet, "/api/devices/next_address", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeviceDescriptionCannotInjectConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wireguard")
	a := newAPI(t, publish.New(dir))
	a.createDevice("laptop")

	body, err := json.Marshal(map[string]any{
		"user_id":     a.user.ID,
		"description": "phone\n[Peer]\nPublicKey = AAAA\nAllowedIPs = 0.0.0.0/0\nPostUp = touch /tmp/owned",
	})
	require.NoError(t, err)
	rec := a.do(http.MethodPost, "/api/devices", string(body))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "description")

	rec = a.do(http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	id := jsonNum(uint(all[0]["id"].(float64)))

	rec = a.do(http.MethodPatch, "/api/devices/"+id, `{"description": "x\nPostUp = id"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(http.MethodPost, "/api/users", `{"email": "eve@example.com", "name": "Eve\r\n[Peer]"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	conf, err := os.ReadFile(filepath.Join(dir, "wg0.conf"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(conf), "\n[Peer]\n"))
	assert.NotContains(t, string(conf), "PostUp")
}

func TestPublishFailureIsReported(t *testing.T) {
	a := newAPI(t, publish.New("/dev/null/wireguard"))

	rec := a.do(http.MethodPost, "/api/devices", `{"user_id": `+jsonNum(a.user.ID)+`, "description": "laptop"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body, "publish_error")
	assert.Contains(t, body, "ip_allocation")

	rec = a.do(http.MethodPost, "/api/publish", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Publish Failed")
}

func TestUsers(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodPost, "/api/users", `{"email": "bob@example.com", "name": "Bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	u := decodeBody(t, rec)
	assert.Equal(t, true, u["active"])

	rec = a.do(http.MethodPost, "/api/users", `{"email": "bob@example.com"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	a.createDevice("laptop")
	rec = a.do(http.MethodGet, "/api/users/"+jsonNum(a.user.ID)+"/configs.tar.gz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="alice-wireguard.tar.gz"`, rec.Header().Get("Content-Disposition"))
	assert.Len(t, rec.Header().Get("X-Checksum-Sha256"), 64)

	rec = a.do(http.MethodDelete, "/api/users/"+jsonNum(uint(u["id"].(float64))), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPublishEndpoint(t *testing.T) {
	a := newAPI(t, nil)
	rec := a.do(http.MethodPost, "/api/publish", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody(t, rec)
	assert.True(t, strings.HasSuffix(res["config_path"].(string), "wg0.conf"))
}
