package wireguard

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"

	"github.com/gate-sso/gate-wireguard/internal/ipam"
	"github.com/gate-sso/gate-wireguard/internal/models"
)

const (
	// DefaultDNSServers уходит клиентам, если DNS в настройках не задан.
	DefaultDNSServers = "8.8.8.8, 8.8.4.4"
	// ClientKeepalive и PeerKeepalive — фиксированные значения, не keep_alive из настроек:
	// настройка лишь включает строку PersistentKeepalive.
	ClientKeepalive = 20
	PeerKeepalive   = 25
	// FallbackFilename — имя файла, если у сервера нет ни FQDN, ни IP.
	FallbackFilename = "gate_vpn_config.conf"
)

// ErrNoAllocation — у устройства нет адреса, конфиг собрать нельзя.
var ErrNoAllocation = errors.New("device has no ip allocation")

// RenderClientConfig собирает .conf для устройства.
func RenderClientConfig(dev *models.VpnDevice, cfg *models.ServerConfiguration) (string, error) {
	ip := dev.IPAddress()
	if ip == "" {
		return "", ErrNoAllocation
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", dev.PrivateKey)
	fmt.Fprintf(&b, "Address = %s/%d\n", ip, prefixBits(cfg))
	fmt.Fprintf(&b, "DNS = %s\n", DNSServers(cfg))

	fmt.Fprintf(&b, "\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", cfg.PublicKey)
	if ep := Endpoint(cfg); ep != "" {
		fmt.Fprintf(&b, "Endpoint = %s\n", ep)
	}
	fmt.Fprintf(&b, "AllowedIPs = %s/32\n", cfg.ServerVPNIPAddress)
	for _, na := range cfg.NetworkAddresses {
		// начальная пустая запись маршрутом не считается
		if addr := strings.TrimSpace(na.Address); addr != "" {
			fmt.Fprintf(&b, "AllowedIPs = %s\n", addr)
		}
	}
	if keepaliveEnabled(cfg) {
		fmt.Fprintf(&b, "PersistentKeepalive = %d\n", ClientKeepalive)
	}
	return b.String(), nil
}

// RenderServerConfig собирает конфиг интерфейса сервера со всеми устройствами.
// Порядок пиров — порядок devices (по id, как пришли из БД).
func RenderServerConfig(cfg *models.ServerConfiguration, devices []models.VpnDevice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", cfg.PrivateKey)
	fmt.Fprintf(&b, "ListenPort = %d\n", cfg.Port)
	fmt.Fprintf(&b, "Address = %s/%d\n", cfg.ServerVPNIPAddress, prefixBits(cfg))

	for i := range devices {
		d := &devices[i]
		ip := d.IPAddress()
		if ip == "" {
			continue
		}
		fmt.Fprintf(&b, "\n# User: %s, Device: %s\n", commentText(ownerName(d)), commentText(d.Description))
		fmt.Fprintf(&b, "[Peer]\n")
		fmt.Fprintf(&b, "PublicKey = %s\n", d.PublicKey)
		fmt.Fprintf(&b, "AllowedIPs = %s/32\n", ip)
		if keepaliveEnabled(cfg) {
			fmt.Fprintf(&b, "PersistentKeepalive = %d\n", PeerKeepalive)
		}
	}
	return b.String()
}

// Endpoint — host:port для клиентов. FQDN важнее IP; пусто, если нет ни того, ни другого.
func Endpoint(cfg *models.ServerConfiguration) string {
	host := strings.TrimSpace(cfg.FQDN)
	if host == "" {
		host = strings.TrimSpace(cfg.IPAddress)
	}
	if host == "" {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// DNSServers — DNS из настроек или DefaultDNSServers, если там пусто/пробелы.
func DNSServers(cfg *models.ServerConfiguration) string {
	if v := strings.TrimSpace(cfg.DNSServers); v != "" {
		return v
	}
	return DefaultDNSServers
}

// ClientFilename — имя скачиваемого файла: fqdn.conf, 10_0_0_1.conf или FallbackFilename.
func ClientFilename(cfg *models.ServerConfiguration) string {
	if fqdn := strings.TrimSpace(cfg.FQDN); fqdn != "" {
		return fqdn + ".conf"
	}
	if ip := strings.TrimSpace(cfg.IPAddress); ip != "" {
		return strings.ReplaceAll(ip, ".", "_") + ".conf"
	}
	return FallbackFilename
}

func keepaliveEnabled(cfg *models.ServerConfiguration) bool {
	return strings.TrimSpace(cfg.KeepAlive) != ""
}

func prefixBits(cfg *models.ServerConfiguration) int {
	if r, err := ipam.ParseRange(cfg.IPRange); err == nil {
		return r.Bits()
	}
	return ipam.DefaultBits
}

// commentText заменяет управляющие символы пробелом: комментарий обязан
// остаться одной строкой, иначе в конфиг можно дописать свою секцию.
func commentText(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

func ownerName(d *models.VpnDevice) string {
	if d.User == nil {
		return ""
	}
	if d.User.Name != "" {
		return d.User.Name
	}
	return d.User.Email
}
