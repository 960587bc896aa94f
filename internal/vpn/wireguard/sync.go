package wireguard

import (
	"fmt"
	"net"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/gate-sso/gate-wireguard/internal/models"
)

// DeviceClient — то, что нужно от wgctrl.Client.
type DeviceClient interface {
	ConfigureDevice(name string, cfg wgtypes.Config) error
	Close() error
}

// DeviceConfig строит желаемое состояние интерфейса из тех же данных, что и RenderServerConfig.
// ReplacePeers: пиры, которых нет в БД, с интерфейса снимаются.
func DeviceConfig(cfg *models.ServerConfiguration, devices []models.VpnDevice) (wgtypes.Config, error) {
	priv, err := wgtypes.ParseKey(cfg.PrivateKey)
	if err != nil {
		return wgtypes.Config{}, fmt.Errorf("server private key: %w", err)
	}
	port := cfg.Port

	var keepalive *time.Duration
	if keepaliveEnabled(cfg) {
		ka := PeerKeepalive * time.Second
		keepalive = &ka
	}

	peers := make([]wgtypes.PeerConfig, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		ip := net.ParseIP(d.IPAddress())
		if ip == nil {
			continue
		}
		pub, err := wgtypes.ParseKey(d.PublicKey)
		if err != nil {
			return wgtypes.Config{}, fmt.Errorf("device %d public key: %w", d.ID, err)
		}
		peers = append(peers, wgtypes.PeerConfig{
			PublicKey:                   pub,
			ReplaceAllowedIPs:           true,
			AllowedIPs:                  []net.IPNet{{IP: ip.To4(), Mask: net.CIDRMask(32, 32)}},
			PersistentKeepaliveInterval: keepalive,
		})
	}

	return wgtypes.Config{
		PrivateKey:   &priv,
		ListenPort:   &port,
		ReplacePeers: true,
		Peers:        peers,
	}, nil
}

// Syncer применяет конфигурацию к живому интерфейсу (аналог `wg syncconf`).
type Syncer struct {
	client DeviceClient
}

// NewSyncer открывает wgctrl-клиент (netlink на Linux).
func NewSyncer() (*Syncer, error) {
	c, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("wgctrl: %w", err)
	}
	return &Syncer{client: c}, nil
}

// NewSyncerWithClient — для тестов и нестандартных бэкендов.
func NewSyncerWithClient(c DeviceClient) *Syncer { return &Syncer{client: c} }

func (s *Syncer) Sync(cfg *models.ServerConfiguration, devices []models.VpnDevice) error {
	dc, err := DeviceConfig(cfg, devices)
	if err != nil {
		return err
	}
	if err := s.client.ConfigureDevice(cfg.InterfaceName, dc); err != nil {
		return fmt.Errorf("configure %s: %w", cfg.InterfaceName, err)
	}
	return nil
}

func (s *Syncer) Close() error { return s.client.Close() }
