// Package publish пишет серверный конфиг WireGuard и ключи туда,
// откуда их читает демон.
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/moby/sys/atomicwriter"

	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/metrics"
	"github.com/gate-sso/gate-wireguard/internal/models"
	"github.com/gate-sso/gate-wireguard/internal/vpn/wireguard"
)

const (
	PrivateKeyFile = "private.key"
	PublicKeyFile  = "public.key"

	fileMode = 0o600
	dirMode  = 0o700
)

// Error — публикация прервалась на Path; Written — файлы, уже записанные к этому моменту.
type Error struct {
	Path    string
	Written []string
	Err     error
}

func (e *Error) Error() string {
	if len(e.Written) == 0 {
		return fmt.Sprintf("publish %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("publish %s (already written: %s): %v", e.Path, strings.Join(e.Written, ", "), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result — что и куда записано.
type Result struct {
	ConfigPath string `json:"config_path"`
	Checksum   string `json:"checksum"`
}

// Publisher перезаписывает {iface}.conf, private.key и public.key в Dir.
// Каждый файл пишется через временный файл и rename, так что демон
// никогда не видит обрезанный конфиг.
// После смены interface_name файл прежнего интерфейса удаляется; помнится
// только то, что публиковал этот процесс.
type Publisher struct {
	Dir string

	mu   sync.Mutex
	last string // interface_name последней успешной публикации
}

func New(dir string) *Publisher { return &Publisher{Dir: dir} }

// Publish рендерит конфиг из текущего состояния и записывает его на диск.
// Повторный вызов с теми же данными даёт те же файлы.
func (p *Publisher) Publish(ctx context.Context, cfg *models.ServerConfiguration, devices []models.VpnDevice) (*Result, error) {
	res, err := p.publish(ctx, cfg, devices)
	metrics.Get().Publishes.WithLabelValues(metrics.Result(err)).Inc()

	log := logs.For("publish").WithField("dir", p.Dir)
	if err != nil {
		log.WithError(err).Error("server configuration publish failed")
		return nil, err
	}
	log.WithField("path", res.ConfigPath).
		WithField("peers", len(devices)).
		WithField("checksum", res.Checksum).
		Info("server configuration published")
	return res, nil
}

func (p *Publisher) publish(ctx context.Context, cfg *models.ServerConfiguration, devices []models.VpnDevice) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("publish: nil server configuration")
	}
	if strings.TrimSpace(cfg.InterfaceName) == "" {
		return nil, &Error{Path: p.Dir, Err: errors.New("interface name is empty")}
	}

	// рендерим до первой записи: ошибка рендера не трогает диск
	text := wireguard.RenderServerConfig(cfg, devices)
	files := []struct {
		name string
		data []byte
	}{
		{cfg.InterfaceName + ".conf", []byte(text)},
		{PrivateKeyFile, []byte(cfg.PrivateKey)},
		{PublicKeyFile, []byte(cfg.PublicKey)},
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.Dir, dirMode); err != nil {
		return nil, &Error{Path: p.Dir, Err: err}
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(p.Dir, f.name)
		if err := ctx.Err(); err != nil {
			return nil, &Error{Path: path, Written: written, Err: err}
		}
		if err := atomicwriter.WriteFile(path, f.data, fileMode); err != nil {
			return nil, &Error{Path: path, Written: written, Err: err}
		}
		written = append(written, path)
	}

	if p.last != "" && p.last != cfg.InterfaceName {
		p.removeStale(p.last)
	}
	p.last = cfg.InterfaceName

	sum := sha256.Sum256([]byte(text))
	return &Result{
		ConfigPath: written[0],
		Checksum:   "sha256:" + hex.EncodeToString(sum[:]),
	}, nil
}

// removeStale удаляет конфиг переименованного интерфейса. Ошибка не роняет
// публикацию: новый конфиг уже на месте.
func (p *Publisher) removeStale(iface string) {
	path := filepath.Join(p.Dir, iface+".conf")
	log := logs.For("publish").WithField("path", path)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("stale interface config left on disk")
		return
	}
	log.Warn("interface renamed, stale config removed")
}
