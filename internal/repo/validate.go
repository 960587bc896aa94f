package repo

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/miekg/dns"

	"github.com/gate-sso/gate-wireguard/internal/ipam"
)

// ConfigurationPatch — частичное обновление настроек: nil-поля не трогаются.
// server_vpn_ip_address здесь нет намеренно: он всегда выводится из ip_range.
type ConfigurationPatch struct {
	IPAddress        *string `json:"ip_address,omitempty"`
	Port             *int    `json:"port,omitempty"`
	DNSServers       *string `json:"dns_servers,omitempty"`
	IPRange          *string `json:"ip_range,omitempty"`
	InterfaceName    *string `json:"interface_name,omitempty"`
	KeepAlive        *string `json:"keep_alive,omitempty"`
	ListenAddress    *string `json:"listen_address,omitempty"`
	ForwardInterface *string `json:"forward_interface,omitempty"`
	FQDN             *string `json:"fqdn,omitempty"`
}

var ifaceNameRe = regexp.MustCompile(`^[A-Za-z0-9_=+.-]{1,15}$`)
var hostLabelRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

// changes проверяет патч целиком и возвращает колонки для UPDATE.
func (p ConfigurationPatch) changes() (map[string]any, error) {
	verr := &ValidationError{}
	out := map[string]any{}

	if p.Port != nil {
		if *p.Port < 1 || *p.Port > 65535 {
			verr.add("port", "must be between 1 and 65535")
		} else {
			out["port"] = *p.Port
		}
	}
	if p.IPRange != nil {
		v := strings.TrimSpace(*p.IPRange)
		r, err := ipam.ParseRange(v)
		if err != nil {
			verr.add("ip_range", err.Error())
		} else {
			out["ip_range"] = v
			out["server_vpn_ip_address"] = r.ServerAddr().String()
		}
	}
	if p.IPAddress != nil {
		v := strings.TrimSpace(*p.IPAddress)
		if v != "" {
			if _, err := netip.ParseAddr(v); err != nil {
				verr.add("ip_address", "must be an IP address")
			}
		}
		out["ip_address"] = v
	}
	if p.FQDN != nil {
		v := strings.TrimSuffix(strings.TrimSpace(*p.FQDN), ".")
		if v != "" && !isHostname(v) {
			verr.add("fqdn", "must be a domain name")
		}
		out["fqdn"] = v
	}
	if p.DNSServers != nil {
		v := strings.TrimSpace(*p.DNSServers)
		if v != "" {
			for _, item := range strings.Split(v, ",") {
				item = strings.TrimSpace(item)
				if _, err := netip.ParseAddr(item); err == nil {
					continue
				}
				if !isHostname(item) {
					verr.add("dns_servers", "must be a comma separated list of IP addresses or domains")
					break
				}
			}
		}
		out["dns_servers"] = v
	}
	if p.KeepAlive != nil {
		v := strings.TrimSpace(*p.KeepAlive)
		if v != "" {
			if n, err := strconv.Atoi(v); err != nil || n < 0 || n > 65535 {
				verr.add("keep_alive", "must be empty or a number of seconds")
			}
		}
		out["keep_alive"] = v
	}
	if p.InterfaceName != nil {
		v := strings.TrimSpace(*p.InterfaceName)
		if !ifaceNameRe.MatchString(v) {
			verr.add("interface_name", "must be 1-15 characters of [A-Za-z0-9_=+.-]")
		}
		out["interface_name"] = v
	}
	if p.ForwardInterface != nil {
		v := strings.TrimSpace(*p.ForwardInterface)
		if v != "" && !ifaceNameRe.MatchString(v) {
			verr.add("forward_interface", "must be 1-15 characters of [A-Za-z0-9_=+.-]")
		}
		out["forward_interface"] = v
	}
	if p.ListenAddress != nil {
		v := strings.TrimSpace(*p.ListenAddress)
		if v != "" {
			if _, err := netip.ParseAddr(v); err != nil {
				verr.add("listen_address", "must be an IP address")
			}
		}
		out["listen_address"] = v
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func isHostname(s string) bool {
	if _, ok := dns.IsDomainName(s); !ok {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if !hostLabelRe.MatchString(label) {
			return false
		}
	}
	return true
}

// parseRoute — маршрут для AllowedIPs.
func parseRoute(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return netip.Prefix{}, invalid("network_address", "must be a CIDR like 192.168.1.0/24")
	}
	return p, nil
}

// freeText проверяет подпись (описание устройства, имя пользователя), которая
// попадает в комментарий серверного конфига: перевод строки там открыл бы новую секцию.
func freeText(field, v string, limit int) error {
	if utf8.RuneCountInString(v) > limit {
		return invalid(field, "must be at most "+strconv.Itoa(limit)+" characters")
	}
	if strings.IndexFunc(v, unicode.IsControl) >= 0 {
		return invalid(field, "must not contain control characters")
	}
	return nil
}
