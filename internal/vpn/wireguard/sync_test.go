package wireguard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/gate-sso/gate-wireguard/internal/models"
)

type fakeDeviceClient struct {
	name string
	cfg  wgtypes.Config
	err  error
}

func (f *fakeDeviceClient) ConfigureDevice(name string, cfg wgtypes.Config) error {
	f.name = name
	f.cfg = cfg
	return f.err
}

func (f *fakeDeviceClient) Close() error { return nil }

func realKeys(t *testing.T) (cfg *models.ServerConfiguration, devs []models.VpnDevice) {
	t.Helper()
	srv, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)
	cfg = testServerConfig()
	cfg.PrivateKey = srv.String()
	cfg.PublicKey = srv.PublicKey().String()

	for i, ip := range []string{"10.42.5.2", "10.42.5.3", ""} {
		k, err := wgtypes.GeneratePrivateKey()
		require.NoError(t, err)
		d := testDevice(uint(i+1), ip)
		d.PrivateKey = k.String()
		d.PublicKey = k.PublicKey().String()
		devs = append(devs, d)
	}
	return cfg, devs
}

func TestDeviceConfig(t *testing.T) {
	cfg, devs := realKeys(t)

	dc, err := DeviceConfig(cfg, devs)
	require.NoError(t, err)

	require.NotNil(t, dc.PrivateKey)
	assert.Equal(t, cfg.PrivateKey, dc.PrivateKey.String())
	require.NotNil(t, dc.ListenPort)
	assert.Equal(t, 51820, *dc.ListenPort)
	assert.True(t, dc.ReplacePeers)

	// устройство без адреса пропускается
	require.Len(t, dc.Peers, 2)
	assert.Equal(t, devs[0].PublicKey, dc.Peers[0].PublicKey.String())
	require.Len(t, dc.Peers[0].AllowedIPs, 1)
	assert.Equal(t, "10.42.5.2/32", dc.Peers[0].AllowedIPs[0].String())
	require.NotNil(t, dc.Peers[0].PersistentKeepaliveInterval)
	assert.Equal(t, 25*time.Second, *dc.Peers[0].PersistentKeepaliveInterval)
}

func TestDeviceConfigBadKey(t *testing.T) {
	cfg, devs := realKeys(t)
	devs[1].PublicKey = "garbage"
	_, err := DeviceConfig(cfg, devs)
	assert.Error(t, err)
}

func TestSyncer(t *testing.T) {
	cfg, devs := realKeys(t)
	fc := &fakeDeviceClient{}

	require.NoError(t, NewSyncerWithClient(fc).Sync(cfg, devs))
	assert.Equal(t, "wg0", fc.name)
	assert.Len(t, fc.cfg.Peers, 2)

	fc.err = errors.New("no such device")
	err := NewSyncerWithClient(fc).Sync(cfg, devs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wg0")
}
