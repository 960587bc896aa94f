// Package testutil — общие фикстуры тестов: sqlite в t.TempDir() со схемой.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gate-sso/gate-wireguard/internal/db"
	"github.com/gate-sso/gate-wireguard/internal/models"
	"github.com/gate-sso/gate-wireguard/internal/vpn/wireguard"
)

// NewDB открывает чистую sqlite-базу с применёнными миграциями.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "gate-wireguard.db") + "?_pragma=synchronous(OFF)"
	d, err := db.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(d))
	t.Cleanup(func() {
		if sqlDB, err := d.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return d
}

// CreateUser сохраняет активного пользователя.
func CreateUser(t testing.TB, d *gorm.DB, email, name string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: name, Active: true}
	require.NoError(t, d.Create(u).Error)
	return u
}

var keySeq atomic.Uint64

// FakeKeys — детерминированный генератор без криптографии, для тестов хранилищ.
type FakeKeys struct {
	Err error
}

func (f *FakeKeys) GenerateKeyPair(context.Context) (wireguard.KeyPair, error) {
	if f.Err != nil {
		return wireguard.KeyPair{}, f.Err
	}
	n := keySeq.Add(1)
	return wireguard.KeyPair{
		PrivateKey: fmt.Sprintf("priv-%d", n),
		PublicKey:  fmt.Sprintf("pub-%d", n),
	}, nil
}
