package repo

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"gorm.io/gorm"

	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/models"
)

// UserStore — минимальный учёт владельцев устройств.
type UserStore struct{ db *gorm.DB }

func NewUserStore(db *gorm.DB) *UserStore { return &UserStore{db: db} }

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)
	// только голый адрес: "Имя <addr>" и прочий мусор вокруг не принимаем
	if a, err := mail.ParseAddress(u.Email); err != nil || a.Address != u.Email {
		return invalid("email", "must be a valid email address")
	}
	if err := freeText("name", u.Name, maxTextLen); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Omit("VpnDevices").Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return invalid("email", "already registered")
	}
	if err != nil {
		return err
	}
	logs.For("users").WithField("id", u.ID).WithField("email", u.Email).Info("user created")
	return nil
}

func (s *UserStore) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) List(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := s.db.WithContext(ctx).Order("id asc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Delete удаляет пользователя с устройствами и их адресами.
func (s *UserStore) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		devices := tx.Model(&models.VpnDevice{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("vpn_device_id IN (?)", devices).Delete(&models.IPAllocation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.VpnDevice{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.User{}, id)
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
	logs.For("users").WithField("id", id).Info("user deleted")
	return nil
}
