package controller

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gate-sso/gate-wireguard/internal/repo"
)

func TestUserBundle(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	for _, desc := range []string{"work laptop", "phone"} {
		_, err := e.svc.CreateDevice(ctx, DeviceInput{UserID: e.user.ID, Description: desc})
		require.NoError(t, err)
	}

	name, archive, sum, err := e.svc.UserBundle(ctx, e.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice-wireguard.tar.gz", name)
	assert.Len(t, sum, 64)

	gz, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	got := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(data)
	}
	require.Len(t, got, 2)
	assert.Contains(t, got["1-work_laptop.conf"], "Address = 10.42.5.2/24")
	assert.Contains(t, got["2-phone.conf"], "Address = 10.42.5.3/24")

	_, _, _, err = e.svc.UserBundle(ctx, e.user.ID+1)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "device", slug("  "))
	assert.Equal(t, "my_phone_2", slug("my phone/2"))
	assert.Equal(t, "ok-name_1", slug("ok-name_1"))
}
