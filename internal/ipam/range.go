// Package ipam — арифметика адресов VPN-сети.
package ipam

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

const (
	// DefaultBits — длина префикса для "голого" адреса (исторический формат ip_range).
	DefaultBits = 24
	MinBits     = 16
	MaxBits     = 30
)

var ErrInvalidRange = errors.New("invalid ip range")

// Range — IPv4-сеть VPN. Первый хост (.1 для /24) занят сервером,
// адрес сети и broadcast не выдаются.
type Range struct {
	prefix netip.Prefix
}

// ParseRange принимает "10.42.5.0" (считается /24) или "10.42.0.0/16".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("%w: empty", ErrInvalidRange)
	}

	var p netip.Prefix
	if strings.Contains(s, "/") {
		pp, err := netip.ParsePrefix(s)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
		}
		p = pp
	} else {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
		}
		p = netip.PrefixFrom(a, DefaultBits)
	}

	if !p.Addr().Is4() {
		return Range{}, fmt.Errorf("%w: only IPv4 is supported", ErrInvalidRange)
	}
	if p.Bits() < MinBits || p.Bits() > MaxBits {
		return Range{}, fmt.Errorf("%w: prefix length %d out of /%d../%d", ErrInvalidRange, p.Bits(), MinBits, MaxBits)
	}
	return Range{prefix: p.Masked()}, nil
}

// MustParseRange — для тестов и констант.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Range) Prefix() netip.Prefix { return r.prefix }
func (r Range) Bits() int            { return r.prefix.Bits() }
func (r Range) String() string       { return r.prefix.String() }

// Network — адрес сети.
func (r Range) Network() netip.Addr { return r.prefix.Addr() }

// ServerAddr — адрес сервера внутри VPN (первый хост).
func (r Range) ServerAddr() netip.Addr { return r.prefix.Addr().Next() }

// Broadcast — последний адрес сети.
func (r Range) Broadcast() netip.Addr {
	a := r.prefix.Addr().As4()
	u := binary.BigEndian.Uint32(a[:])
	u |= uint32(1)<<(32-r.prefix.Bits()) - 1
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], u)
	return netip.AddrFrom4(out)
}

// Capacity — сколько адресов можно выдать устройствам (253 для /24).
func (r Range) Capacity() int {
	return 1<<(32-r.prefix.Bits()) - 3
}

// Contains — адрес внутри сети.
func (r Range) Contains(a netip.Addr) bool { return r.prefix.Contains(a) }

// Assignable — адрес можно выдать устройству (не сеть, не сервер, не broadcast).
func (r Range) Assignable(a netip.Addr) bool {
	if !r.Contains(a) {
		return false
	}
	return a != r.Network() && a != r.ServerAddr() && a != r.Broadcast()
}

// NextFree возвращает наименьший свободный адрес начиная со второго хоста.
// taken сообщает, занят ли адрес.
func (r Range) NextFree(taken func(netip.Addr) bool) (netip.Addr, bool) {
	last := r.Broadcast()
	for a := r.ServerAddr().Next(); a.Less(last); a = a.Next() {
		if !taken(a) {
			return a, true
		}
	}
	return netip.Addr{}, false
}

// ServerAddress — адрес сервера для строки ip_range.
func ServerAddress(ipRange string) (string, error) {
	r, err := ParseRange(ipRange)
	if err != nil {
		return "", err
	}
	return r.ServerAddr().String(), nil
}
