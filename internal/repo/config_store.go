package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gate-sso/gate-wireguard/internal/ipam"
	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/models"
	"github.com/gate-sso/gate-wireguard/internal/vpn/wireguard"
)

// Значения для первой автоматически созданной конфигурации.
const (
	DefaultPort             = 51820
	DefaultIPRange          = "10.42.5.0"
	DefaultInterfaceName    = "wg0"
	DefaultKeepAlive        = "25"
	DefaultForwardInterface = "eth0"
)

// ConfigStore — единственная конфигурация сервера и её маршруты.
type ConfigStore struct {
	db    *gorm.DB
	keys  wireguard.KeyGenerator
	group singleflight.Group
}

func NewConfigStore(db *gorm.DB, keys wireguard.KeyGenerator) *ConfigStore {
	return &ConfigStore{db: db, keys: keys}
}

func withRoutes(db *gorm.DB) *gorm.DB {
	return db.Preload("NetworkAddresses", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") })
}

// Current — первая (и единственная) конфигурация или ErrNotFound.
func (s *ConfigStore) Current(ctx context.Context) (*models.ServerConfiguration, error) {
	var c models.ServerConfiguration
	err := withRoutes(s.db.WithContext(ctx)).Order("id asc").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ConfigStore) Get(ctx context.Context, id uint) (*models.ServerConfiguration, error) {
	var c models.ServerConfiguration
	err := withRoutes(s.db.WithContext(ctx)).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Provision возвращает конфигурацию, создавая её при первом обращении.
// Конкурентные вызовы внутри процесса схлопываются singleflight'ом,
// между процессами защищает уникальный индекс singleton.
func (s *ConfigStore) Provision(ctx context.Context) (*models.ServerConfiguration, error) {
	c, err := s.Current(ctx)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// результат общий для всех ждущих: отмена первого вызывающего не должна его сорвать
	if _, err, _ := s.group.Do("provision", func() (any, error) {
		return nil, s.provision(context.WithoutCancel(ctx))
	}); err != nil {
		return nil, err
	}
	// каждый вызывающий получает свою копию
	return s.Current(ctx)
}

func (s *ConfigStore) provision(ctx context.Context) error {
	log := logs.For("config")

	if _, err := s.Current(ctx); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	kp, err := s.keys.GenerateKeyPair(ctx)
	if err != nil {
		return fmt.Errorf("provision server configuration: %w", err)
	}

	rng := ipam.MustParseRange(DefaultIPRange)
	c := models.ServerConfiguration{
		Singleton:          1,
		PrivateKey:         kp.PrivateKey,
		PublicKey:          kp.PublicKey,
		Port:               DefaultPort,
		IPRange:            DefaultIPRange,
		ServerVPNIPAddress: rng.ServerAddr().String(),
		InterfaceName:      DefaultInterfaceName,
		KeepAlive:          DefaultKeepAlive,
		ForwardInterface:   DefaultForwardInterface,
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.ID = 0
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&c).Error; err != nil {
				return err
			}
			// пустая запись маршрута, как в исходной схеме; в конфиг она не попадает
			return tx.Create(&models.NetworkAddress{ServerConfigurationID: c.ID}).Error
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// конфигурацию успел создать другой процесс
			log.Info("server configuration already provisioned elsewhere")
			return nil
		}
		if err == nil {
			log.WithField("id", c.ID).WithField("public_key", c.PublicKey).Info("server configuration provisioned")
			return nil
		}
		log.WithError(err).WithField("attempt", attempt).Warn("provision failed")
	}
	return err
}

// Update применяет частичный патч. Невалидный патч отклоняется целиком.
// При смене ip_range адрес сервера пересчитывается в том же UPDATE.
func (s *ConfigStore) Update(ctx context.Context, id uint, patch ConfigurationPatch) (*models.ServerConfiguration, error) {
	updates, err := patch.changes()
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.ServerConfiguration
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&c).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	logs.For("config").WithField("id", id).WithField("fields", fieldNames(updates)).Info("server configuration updated")
	return s.Get(ctx, id)
}

// AddNetworkAddress добавляет маршрут. Дубликаты в пределах конфигурации отклоняются.
func (s *ConfigStore) AddNetworkAddress(ctx context.Context, configID uint, cidr string) (*models.NetworkAddress, error) {
	route, err := parseRoute(cidr)
	if err != nil {
		return nil, err
	}

	na := &models.NetworkAddress{ServerConfigurationID: configID, Address: strings.TrimSpace(cidr)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.ServerConfiguration
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, configID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var existing []string
		if err := tx.Model(&models.NetworkAddress{}).
			Where("server_configuration_id = ?", configID).
			Pluck("network_address", &existing).Error; err != nil {
			return err
		}
		for _, e := range existing {
			if p, err := parseRoute(e); err == nil && p.Masked() == route.Masked() {
				return invalid("network_address", "route "+route.String()+" already exists")
			}
		}
		return tx.Create(na).Error
	})
	if err != nil {
		return nil, err
	}

	logs.For("config").WithField("route", na.Address).Info("network address added")
	return na, nil
}

func (s *ConfigStore) RemoveNetworkAddress(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.NetworkAddress{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	logs.For("config").WithField("id", id).Info("network address removed")
	return nil
}

func fieldNames(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
