// Package tarball собирает детерминированные tar.gz архивы с конфигами.
package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path"
	"sort"
	"strings"
	"time"
)

// File — один файл архива. Mode 0 означает 0600: в конфигах лежат приватные ключи.
type File struct {
	Name string
	Data []byte
	Mode int64
}

// Build собирает tar.gz из files в порядке имён.
// Одинаковый набор файлов даёт побайтно одинаковый архив.
// Возвращает архив и sha256 в hex.
func Build(files []File) ([]byte, string, error) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	// детерминируем gzip-заголовок
	gz.Name = ""
	gz.Comment = ""
	gz.ModTime = time.Unix(0, 0)

	tw := tar.NewWriter(gz)

	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	seen := make(map[string]bool, len(sorted))
	for _, f := range sorted {
		// без ведущего слэша и выходов за корень архива
		name := path.Clean("/" + strings.ReplaceAll(f.Name, "\\", "/"))
		name = strings.TrimPrefix(name, "/")
		if name == "" || name == "." {
			continue
		}
		if seen[name] {
			_ = tw.Close()
			_ = gz.Close()
			return nil, "", errors.New("duplicate file in archive: " + name)
		}
		seen[name] = true

		mode := f.Mode
		if mode == 0 {
			mode = 0o600
		}
		hdr := &tar.Header{
			Name:    name,
			Mode:    mode,
			Size:    int64(len(f.Data)),
			ModTime: time.Unix(0, 0), // фиксируем время в tar-заголовке
		}
		if err := tw.WriteHeader(hdr); err != nil {
			_ = tw.Close()
			_ = gz.Close()
			return nil, "", err
		}
		if _, err := tw.Write(f.Data); err != nil {
			_ = tw.Close()
			_ = gz.Close()
			return nil, "", err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, "", err
	}
	if err := gz.Close(); err != nil {
		return nil, "", err
	}

	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}
