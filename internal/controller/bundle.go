package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/tarball"
	"github.com/gate-sso/gate-wireguard/internal/vpn/wireguard"
)

// UserBundle — tar.gz с клиентскими конфигами всех устройств пользователя.
// Устройства без адреса пропускаются. Возвращает имя архива, архив и sha256.
func (s *Service) UserBundle(ctx context.Context, userID uint) (string, []byte, string, error) {
	u, err := s.Users.Get(ctx, userID)
	if err != nil {
		return "", nil, "", err
	}
	devices, err := s.Devices.ListByUser(ctx, userID)
	if err != nil {
		return "", nil, "", err
	}
	cfg, err := s.Configs.Provision(ctx)
	if err != nil {
		return "", nil, "", err
	}

	files := make([]tarball.File, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		text, err := wireguard.RenderClientConfig(d, cfg)
		if err != nil {
			logs.For("bundle").WithField("device_id", d.ID).WithError(err).Warn("device skipped")
			continue
		}
		files = append(files, tarball.File{
			Name: fmt.Sprintf("%d-%s.conf", d.ID, slug(d.Description)),
			Data: []byte(text),
		})
	}

	archive, sum, err := tarball.Build(files)
	if err != nil {
		return "", nil, "", err
	}
	name := slug(strings.SplitN(u.Email, "@", 2)[0]) + "-wireguard.tar.gz"
	return name, archive, sum, nil
}

// slug оставляет в имени файла только [A-Za-z0-9_-].
func slug(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "device"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
