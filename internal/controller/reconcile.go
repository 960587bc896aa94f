package controller

import (
	"context"
	"fmt"

	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/metrics"
	"github.com/gate-sso/gate-wireguard/internal/publish"
)

// Reconcile перечитывает состояние из БД и публикует серверный конфиг,
// затем (если задан Syncer) применяет пиров к интерфейсу.
// Вызовы последовательны: позже начатая публикация видит более свежее состояние.
func (s *Service) Reconcile(ctx context.Context) (*publish.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.Configs.Provision(ctx)
	if err != nil {
		return nil, &PublishError{Err: err}
	}
	devices, err := s.Devices.List(ctx, false)
	if err != nil {
		return nil, &PublishError{Err: err}
	}

	res, err := s.Publisher.Publish(ctx, cfg, devices)
	if err != nil {
		return nil, &PublishError{Err: err}
	}

	if s.Syncer != nil {
		err := s.Syncer.Sync(cfg, devices)
		metrics.Get().DeviceSyncs.WithLabelValues(metrics.Result(err)).Inc()
		log := logs.For("reconcile").WithField("interface", cfg.InterfaceName)
		if err != nil {
			log.WithError(err).Error("interface sync failed")
			return res, &PublishError{Err: fmt.Errorf("sync interface %s: %w", cfg.InterfaceName, err)}
		}
		log.WithField("peers", len(devices)).Info("interface synced")
	}
	return res, nil
}
