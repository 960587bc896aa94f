package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gate-sso/gate-wireguard/internal/models"
	"github.com/gate-sso/gate-wireguard/internal/repo"
)

func TestDeviceCreateUnknownUser(t *testing.T) {
	f := newFixture(t)

	dev := &models.VpnDevice{UserID: f.user.ID + 100, PrivateKey: "k", PublicKey: "p"}
	err := f.devices.Create(context.Background(), dev)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Zero(t, dev.ID)

	var n int64
	require.NoError(t, f.db.Model(&models.IPAllocation{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestDeviceGetLoadsRefs(t *testing.T) {
	f := newFixture(t)
	dev := f.newDevice(t, "laptop")

	got, err := f.devices.Get(context.Background(), dev.ID)
	require.NoError(t, err)
	require.NotNil(t, got.User)
	assert.Equal(t, "alice@example.com", got.User.Email)
	assert.Equal(t, "10.42.5.2", got.IPAddress())
	assert.Equal(t, "priv-laptop", got.PrivateKey)

	_, err = f.devices.Get(context.Background(), dev.ID+1)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeviceListAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.newDevice(t, "phone")
	b := f.newDevice(t, "router")

	got, err := f.devices.Update(ctx, b.ID, repo.DevicePatch{Node: ptr(true)})
	require.NoError(t, err)
	assert.True(t, got.Node)
	assert.Equal(t, "router", got.Description)

	got, err = f.devices.Update(ctx, a.ID, repo.DevicePatch{Description: ptr(" work phone ")})
	require.NoError(t, err)
	assert.Equal(t, "work phone", got.Description)
	assert.False(t, got.Node)

	all, err := f.devices.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	nodes, err := f.devices.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, b.ID, nodes[0].ID)

	_, err = f.devices.Update(ctx, 999, repo.DevicePatch{Node: ptr(true)})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeviceDeleteReleasesAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev := f.newDevice(t, "tablet")

	require.NoError(t, f.devices.Delete(ctx, dev.ID))
	assert.ErrorIs(t, f.devices.Delete(ctx, dev.ID), repo.ErrNotFound)

	var n int64
	require.NoError(t, f.db.Model(&models.IPAllocation{}).Count(&n).Error)
	assert.Zero(t, n)

	next, err := f.alloc.NextAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.42.5.2", next)
}

func TestDeviceDescriptionRejectsControlCharacters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var verr *repo.ValidationError
	dev := &models.VpnDevice{UserID: f.user.ID, Description: "laptop\n[Peer]\nAllowedIPs = 0.0.0.0/0", PrivateKey: "k", PublicKey: "p"}
	require.ErrorAs(t, f.devices.Create(ctx, dev), &verr)
	assert.Equal(t, "must not contain control characters", verr.Fields["description"])
	assert.Zero(t, dev.ID)

	var n int64
	require.NoError(t, f.db.Model(&models.VpnDevice{}).Count(&n).Error)
	assert.Zero(t, n)

	ok := f.newDevice(t, "phone")
	for _, bad := range []string{"a\rb", "a\tb", "a\x00b", "a\u0085b"} {
		_, err := f.devices.Update(ctx, ok.ID, repo.DevicePatch{Description: ptr(bad)})
		require.ErrorAs(t, err, &verr, "%q", bad)
		assert.Contains(t, verr.Fields, "description")
	}

	got, err := f.devices.Get(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, "phone", got.Description)

	// юникод и длина считаются в символах
	_, err = f.devices.Update(ctx, ok.ID, repo.DevicePatch{Description: ptr("ноутбук Алисы")})
	require.NoError(t, err)
}
