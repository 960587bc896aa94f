package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, archive []byte) map[string]string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	out := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(data)
		assert.EqualValues(t, 0o600, hdr.Mode)
	}
	return out
}

func TestBuildIsDeterministic(t *testing.T) {
	a := []File{{Name: "b.conf", Data: []byte("b")}, {Name: "a.conf", Data: []byte("a")}}
	b := []File{{Name: "a.conf", Data: []byte("a")}, {Name: "b.conf", Data: []byte("b")}}

	arcA, sumA, err := Build(a)
	require.NoError(t, err)
	arcB, sumB, err := Build(b)
	require.NoError(t, err)

	assert.Equal(t, sumA, sumB)
	assert.Equal(t, arcA, arcB)
	assert.Equal(t, map[string]string{"a.conf": "a", "b.conf": "b"}, readAll(t, arcA))
}

func TestBuildSanitizesNames(t *testing.T) {
	arc, _, err := Build([]File{
		{Name: "/etc/wg0.conf", Data: []byte("x")},
		{Name: "../../escape.conf", Data: []byte("y")},
		{Name: "", Data: []byte("skipped")},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"etc/wg0.conf": "x", "escape.conf": "y"}, readAll(t, arc))
}

func TestBuildRejectsDuplicates(t *testing.T) {
	_, _, err := Build([]File{{Name: "a.conf"}, {Name: "/a.conf"}})
	assert.Error(t, err)
}
