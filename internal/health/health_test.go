package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gate-sso/gate-wireguard/internal/testutil"
)

func serve(r *mux.Router, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadiness(t *testing.T) {
	dir := t.TempDir()
	r := mux.NewRouter()
	RegisterRoutesWithChecks(r, map[string]Check{
		"db":         DBCheck(testutil.NewDB(t)),
		"config_dir": DirCheck(filepath.Join(dir, "wireguard")),
	})

	assert.Equal(t, http.StatusOK, serve(r, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(r, "/readyz").Code)
}

func TestReadinessFails(t *testing.T) {
	r := mux.NewRouter()
	RegisterRoutesWithChecks(r, map[string]Check{
		"broken": func(context.Context) error { return errors.New("down") },
	})

	rec := serve(r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "broken")
	// liveness от готовности не зависит
	assert.Equal(t, http.StatusOK, serve(r, "/healthz").Code)
}

func TestDirCheck(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	ctx := context.Background()
	assert.NoError(t, DirCheck(dir)(ctx))
	assert.NoError(t, DirCheck(filepath.Join(dir, "new"))(ctx))
	assert.Error(t, DirCheck(file)(ctx))
	assert.Error(t, DirCheck(filepath.Join(dir, "a", "b"))(ctx))
	assert.Error(t, DBCheck(nil)(ctx))
}
