package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/gate-sso/gate-wireguard/internal/logs"
)

// Check — проверка готовности; nil — всё хорошо.
type Check func(ctx context.Context) error

// RegisterRoutes — базовый liveness.
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet)
}

// RegisterRoutesWithChecks — liveness + readiness по набору проверок.
func RegisterRoutesWithChecks(r *mux.Router, checks map[string]Check) {
	RegisterRoutes(r)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logs.For("health").WithField("check", name).WithError(err).Warn("not ready")
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
}

// DBCheck пингует БД.
func DBCheck(db *gorm.DB) Check {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("db not configured")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// DirCheck — каталог конфига существует, либо его можно создать в существующем родителе.
func DirCheck(dir string) Check {
	return func(context.Context) error {
		st, err := os.Stat(dir)
		if err == nil {
			if !st.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		parent, err := os.Stat(filepath.Dir(filepath.Clean(dir)))
		if err != nil {
			return err
		}
		if !parent.IsDir() {
			return fmt.Errorf("%s is not a directory", filepath.Dir(dir))
		}
		return nil
	}
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
