package repo

import (
	"context"
	"errors"
	"net/netip"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gate-sso/gate-wireguard/internal/ipam"
	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/metrics"
	"github.com/gate-sso/gate-wireguard/internal/models"
)

// maxAttempts — сколько раз повторяем транзакцию при нарушении уникальности.
const maxAttempts = 3

// Allocator выдаёт устройствам адреса из ip_range конфигурации сервера.
// Скан и вставка идут в одной транзакции под блокировкой строки конфигурации
// (FOR UPDATE; на sqlite — единственное соединение) и под mu внутри процесса.
// Уникальный индекс на ip_address — последняя линия: проигравшая вставка повторяется.
type Allocator struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewAllocator(db *gorm.DB) *Allocator { return &Allocator{db: db} }

// NextAvailable — адрес, который получит следующее устройство. Ничего не пишет.
func (a *Allocator) NextAvailable(ctx context.Context) (string, error) {
	var out string
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rng, err := currentRange(tx, false)
		if err != nil {
			return err
		}
		addr, err := nextFree(tx, rng)
		if err != nil {
			return err
		}
		out = addr.String()
		return nil
	})
	return out, err
}

// Allocate выдаёт адрес существующему устройству. Повторный вызов возвращает уже выданный адрес.
func (a *Allocator) Allocate(ctx context.Context, device *models.VpnDevice) (*models.IPAllocation, error) {
	alloc, err := a.allocateWith(ctx, func(*gorm.DB) (uint, error) { return device.ID, nil })
	if err != nil {
		return nil, err
	}
	device.IPAllocation = alloc
	return alloc, nil
}

// Deallocate освобождает адрес устройства; без аллокации — no-op.
func (a *Allocator) Deallocate(ctx context.Context, deviceID uint) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return a.deallocateTx(tx, deviceID)
	})
}

// deallocateTx — то же внутри транзакции удаления устройства.
func (a *Allocator) deallocateTx(tx *gorm.DB, deviceID uint) error {
	res := tx.Where("vpn_device_id = ?", deviceID).Delete(&models.IPAllocation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		logs.For("allocator").WithField("device_id", deviceID).Info("ip address released")
	}
	return nil
}

// allocateWith: before выполняется в той же транзакции (например, создаёт устройство)
// и возвращает id устройства, которому выдаётся адрес.
func (a *Allocator) allocateWith(ctx context.Context, before func(tx *gorm.DB) (uint, error)) (*models.IPAllocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := metrics.Get()
	log := logs.For("allocator")

	var alloc *models.IPAllocation
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			deviceID, err := before(tx)
			if err != nil {
				return err
			}
			alloc, err = allocateTx(tx, deviceID)
			return err
		})
		switch {
		case err == nil:
			m.Allocations.Inc()
			log.WithField("device_id", alloc.VpnDeviceID).WithField("ip", alloc.IPAddress).Info("ip address allocated")
			return alloc, nil
		case errors.Is(err, gorm.ErrDuplicatedKey):
			log.WithField("attempt", attempt).Warn("ip allocation conflict, retrying")
			continue
		case errors.Is(err, ErrAllocationExhausted):
			m.AllocationFailures.WithLabelValues("exhausted").Inc()
			return nil, err
		default:
			m.AllocationFailures.WithLabelValues("error").Inc()
			return nil, err
		}
	}
	m.AllocationFailures.WithLabelValues("conflict").Inc()
	return nil, ErrConflict
}

func allocateTx(tx *gorm.DB, deviceID uint) (*models.IPAllocation, error) {
	rng, err := currentRange(tx, true)
	if err != nil {
		return nil, err
	}

	var existing models.IPAllocation
	err = tx.Where("vpn_device_id = ?", deviceID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	addr, err := nextFree(tx, rng)
	if err != nil {
		return nil, err
	}
	alloc := &models.IPAllocation{VpnDeviceID: deviceID, IPAddress: addr.String()}
	if err := tx.Create(alloc).Error; err != nil {
		return nil, err
	}
	return alloc, nil
}

// currentRange читает ip_range конфигурации; lock — взять строку FOR UPDATE.
func currentRange(tx *gorm.DB, lock bool) (ipam.Range, error) {
	q := tx.Order("id asc")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c models.ServerConfiguration
	if err := q.First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ipam.Range{}, ErrNotFound
		}
		return ipam.Range{}, err
	}
	return ipam.ParseRange(c.IPRange)
}

func nextFree(tx *gorm.DB, rng ipam.Range) (netip.Addr, error) {
	var used []string
	if err := tx.Model(&models.IPAllocation{}).Pluck("ip_address", &used).Error; err != nil {
		return netip.Addr{}, err
	}
	taken := make(map[netip.Addr]struct{}, len(used))
	for _, u := range used {
		if addr, err := netip.ParseAddr(u); err == nil {
			taken[addr] = struct{}{}
		}
	}
	addr, ok := rng.NextFree(func(a netip.Addr) bool {
		_, busy := taken[a]
		return busy
	})
	if !ok {
		return netip.Addr{}, ErrAllocationExhausted
	}
	return addr, nil
}
