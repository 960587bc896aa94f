package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/models"
)

// maxTextLen — размер колонок description и name.
const maxTextLen = 255

type DeviceStore struct {
	db    *gorm.DB
	alloc *Allocator
}

func NewDeviceStore(db *gorm.DB, alloc *Allocator) *DeviceStore {
	return &DeviceStore{db: db, alloc: alloc}
}

// DevicePatch — изменяемые поля устройства; ключи и адрес не меняются.
type DevicePatch struct {
	Description *string `json:"description,omitempty"`
	Node        *bool   `json:"node,omitempty"`
}

func withDeviceRefs(db *gorm.DB) *gorm.DB {
	return db.Preload("User").Preload("IPAllocation")
}

// Create сохраняет устройство и выдаёт ему адрес в одной транзакции:
// если адреса нет, устройство тоже не создаётся.
func (s *DeviceStore) Create(ctx context.Context, d *models.VpnDevice) error {
	d.Description = strings.TrimSpace(d.Description)
	if err := freeText("description", d.Description, maxTextLen); err != nil {
		return err
	}
	_, err := s.alloc.allocateWith(ctx, func(tx *gorm.DB) (uint, error) {
		var u models.User
		if err := tx.First(&u, d.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, ErrNotFound
			}
			return 0, err
		}
		// новая попытка после конфликта создаёт устройство заново
		d.ID = 0
		d.IPAllocation = nil
		if err := tx.Omit("User", "IPAllocation").Create(d).Error; err != nil {
			return 0, err
		}
		return d.ID, nil
	})
	if err != nil {
		d.ID = 0
		return err
	}

	created, err := s.Get(ctx, d.ID)
	if err != nil {
		return err
	}
	*d = *created
	logs.For("devices").
		WithField("id", d.ID).
		WithField("user_id", d.UserID).
		WithField("ip", d.IPAddress()).
		Info("device created")
	return nil
}

// NextAddress — адрес, который получит следующее созданное устройство.
func (s *DeviceStore) NextAddress(ctx context.Context) (string, error) {
	return s.alloc.NextAvailable(ctx)
}

func (s *DeviceStore) Get(ctx context.Context, id uint) (*models.VpnDevice, error) {
	var d models.VpnDevice
	err := withDeviceRefs(s.db.WithContext(ctx)).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// List — все устройства в порядке создания; nodesOnly оставляет только узлы.
func (s *DeviceStore) List(ctx context.Context, nodesOnly bool) ([]models.VpnDevice, error) {
	q := withDeviceRefs(s.db.WithContext(ctx)).Order("id asc")
	if nodesOnly {
		q = q.Where("node = ?", true)
	}
	var out []models.VpnDevice
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByUser — устройства пользователя в порядке создания.
func (s *DeviceStore) ListByUser(ctx context.Context, userID uint) ([]models.VpnDevice, error) {
	var out []models.VpnDevice
	err := withDeviceRefs(s.db.WithContext(ctx)).Where("user_id = ?", userID).Order("id asc").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DeviceStore) Update(ctx context.Context, id uint, patch DevicePatch) (*models.VpnDevice, error) {
	updates := map[string]any{}
	if patch.Description != nil {
		v := strings.TrimSpace(*patch.Description)
		if err := freeText("description", v, maxTextLen); err != nil {
			return nil, err
		}
		updates["description"] = v
	}
	if patch.Node != nil {
		updates["node"] = *patch.Node
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.VpnDevice
		if err := tx.First(&d, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&d).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	logs.For("devices").WithField("id", id).WithField("fields", fieldNames(updates)).Info("device updated")
	return s.Get(ctx, id)
}

// Delete удаляет устройство вместе с его адресом.
func (s *DeviceStore) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.alloc.deallocateTx(tx, id); err != nil {
			return err
		}
		res := tx.Delete(&models.VpnDevice{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	logs.For("devices").WithField("id", id).Info("device deleted")
	return nil
}
