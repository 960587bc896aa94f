package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/gate-sso/gate-wireguard/internal/models"
	"github.com/gate-sso/gate-wireguard/internal/publish"
	"github.com/gate-sso/gate-wireguard/internal/repo"
	"github.com/gate-sso/gate-wireguard/internal/vpn/wireguard"
)

// Репозитории
type ConfigRepo interface {
	Provision(ctx context.Context) (*models.ServerConfiguration, error)
	Update(ctx context.Context, id uint, patch repo.ConfigurationPatch) (*models.ServerConfiguration, error)
	AddNetworkAddress(ctx context.Context, configID uint, cidr string) (*models.NetworkAddress, error)
	RemoveNetworkAddress(ctx context.Context, id uint) error
}
type DeviceRepo interface {
	Create(ctx context.Context, d *models.VpnDevice) error
	Get(ctx context.Context, id uint) (*models.VpnDevice, error)
	List(ctx context.Context, nodesOnly bool) ([]models.VpnDevice, error)
	ListByUser(ctx context.Context, userID uint) ([]models.VpnDevice, error)
	Update(ctx context.Context, id uint, patch repo.DevicePatch) (*models.VpnDevice, error)
	Delete(ctx context.Context, id uint) error
	NextAddress(ctx context.Context) (string, error)
}
type UserRepo interface {
	Get(ctx context.Context, id uint) (*models.User, error)
	Delete(ctx context.Context, id uint) error
}

type Publisher interface {
	Publish(ctx context.Context, cfg *models.ServerConfiguration, devices []models.VpnDevice) (*publish.Result, error)
}

// PeerSyncer применяет пиров к живому интерфейсу.
type PeerSyncer interface {
	Sync(cfg *models.ServerConfiguration, devices []models.VpnDevice) error
}

// PublishError — изменение уже сохранено, но конфиг не опубликован.
// Следующая успешная публикация (или POST /api/publish) это исправит.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string { return "configuration not published: " + e.Err.Error() }
func (e *PublishError) Unwrap() error { return e.Err }

// IsPublishError — мутация прошла, упала только публикация.
func IsPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe)
}

// Service — действия администратора: изменение состояния и публикация конфига после него.
type Service struct {
	Configs   ConfigRepo
	Devices   DeviceRepo
	Users     UserRepo
	Keys      wireguard.KeyGenerator
	Publisher Publisher
	Syncer    PeerSyncer // nil — интерфейс не трогаем

	mu sync.Mutex
}

// DeviceInput — данные для регистрации устройства; ключи генерирует сервер.
type DeviceInput struct {
	UserID      uint   `json:"user_id"`
	Description string `json:"description"`
	Node        bool   `json:"node"`
}

func (s *Service) Configuration(ctx context.Context) (*models.ServerConfiguration, error) {
	return s.Configs.Provision(ctx)
}

func (s *Service) UpdateConfiguration(ctx context.Context, patch repo.ConfigurationPatch) (*models.ServerConfiguration, error) {
	cfg, err := s.Configs.Provision(ctx)
	if err != nil {
		return nil, err
	}
	updated, err := s.Configs.Update(ctx, cfg.ID, patch)
	if err != nil {
		return nil, err
	}
	_, err = s.Reconcile(ctx)
	return updated, err
}

func (s *Service) AddNetworkAddress(ctx context.Context, cidr string) (*models.NetworkAddress, error) {
	cfg, err := s.Configs.Provision(ctx)
	if err != nil {
		return nil, err
	}
	na, err := s.Configs.AddNetworkAddress(ctx, cfg.ID, cidr)
	if err != nil {
		return nil, err
	}
	_, err = s.Reconcile(ctx)
	return na, err
}

func (s *Service) RemoveNetworkAddress(ctx context.Context, id uint) error {
	if err := s.Configs.RemoveNetworkAddress(ctx, id); err != nil {
		return err
	}
	_, err := s.Reconcile(ctx)
	return err
}

// CreateDevice: ключи -> устройство с адресом -> публикация.
// Ошибка генерации ключей или нехватка адресов — устройство не создаётся.
func (s *Service) CreateDevice(ctx context.Context, in DeviceInput) (*models.VpnDevice, error) {
	if _, err := s.Configs.Provision(ctx); err != nil {
		return nil, err
	}
	kp, err := s.Keys.GenerateKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	dev := &models.VpnDevice{
		UserID:      in.UserID,
		Description: in.Description,
		Node:        in.Node,
		PrivateKey:  kp.PrivateKey,
		PublicKey:   kp.PublicKey,
	}
	if err := s.Devices.Create(ctx, dev); err != nil {
		return nil, err
	}
	_, err = s.Reconcile(ctx)
	return dev, err
}

func (s *Service) GetDevice(ctx context.Context, id uint) (*models.VpnDevice, error) {
	return s.Devices.Get(ctx, id)
}

// NextAddress — какой адрес достанется следующему устройству.
func (s *Service) NextAddress(ctx context.Context) (string, error) {
	if _, err := s.Configs.Provision(ctx); err != nil {
		return "", err
	}
	return s.Devices.NextAddress(ctx)
}

func (s *Service) ListDevices(ctx context.Context, nodesOnly bool) ([]models.VpnDevice, error) {
	return s.Devices.List(ctx, nodesOnly)
}

func (s *Service) UpdateDevice(ctx context.Context, id uint, patch repo.DevicePatch) (*models.VpnDevice, error) {
	dev, err := s.Devices.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	// описание попадает в комментарий пира
	_, err = s.Reconcile(ctx)
	return dev, err
}

func (s *Service) DeleteDevice(ctx context.Context, id uint) error {
	if err := s.Devices.Delete(ctx, id); err != nil {
		return err
	}
	_, err := s.Reconcile(ctx)
	return err
}

func (s *Service) DeleteUser(ctx context.Context, id uint) error {
	if err := s.Users.Delete(ctx, id); err != nil {
		return err
	}
	_, err := s.Reconcile(ctx)
	return err
}

// ClientConfig — текст конфига устройства и имя файла для скачивания. На диск не пишется.
func (s *Service) ClientConfig(ctx context.Context, deviceID uint) (filename, text string, err error) {
	dev, err := s.Devices.Get(ctx, deviceID)
	if err != nil {
		return "", "", err
	}
	cfg, err := s.Configs.Provision(ctx)
	if err != nil {
		return "", "", err
	}
	text, err = wireguard.RenderClientConfig(dev, cfg)
	if err != nil {
		return "", "", err
	}
	return wireguard.ClientFilename(cfg), text, nil
}

// ClientQR — конфиг устройства в виде PNG с QR-кодом.
func (s *Service) ClientQR(ctx context.Context, deviceID uint, size int) ([]byte, error) {
	_, text, err := s.ClientConfig(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return wireguard.QRCodePNG(text, size)
}
