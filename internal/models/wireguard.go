package models

import "time"

// ServerConfiguration — единственная запись с настройками WireGuard-сервера.
// Singleton всегда 1: уникальный индекс не даёт создать вторую строку.
type ServerConfiguration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Singleton uint      `gorm:"uniqueIndex;not null;default:1" json:"-"`

	PrivateKey         string `gorm:"column:private_key;size:64;not null" json:"-"`
	PublicKey          string `gorm:"column:public_key;size:64;not null" json:"public_key"`
	IPAddress          string `gorm:"column:ip_address;size:45" json:"ip_address"`
	Port               int    `gorm:"column:port;not null" json:"port"`
	DNSServers         string `gorm:"column:dns_servers;size:255" json:"dns_servers"`
	IPRange            string `gorm:"column:ip_range;size:64" json:"ip_range"`
	InterfaceName      string `gorm:"column:interface_name;size:15" json:"interface_name"`
	KeepAlive          string `gorm:"column:keep_alive;size:16" json:"keep_alive"`
	ListenAddress      string `gorm:"column:listen_address;size:64" json:"listen_address"`
	ServerVPNIPAddress string `gorm:"column:server_vpn_ip_address;size:45" json:"server_vpn_ip_address"`
	ForwardInterface   string `gorm:"column:forward_interface;size:64" json:"forward_interface"`
	FQDN               string `gorm:"column:fqdn;size:255" json:"fqdn"`

	NetworkAddresses []NetworkAddress `gorm:"constraint:OnDelete:CASCADE" json:"network_addresses"`
}

func (ServerConfiguration) TableName() string { return "server_configurations" }

// NetworkAddress — дополнительный маршрут (CIDR), который уходит клиентам в AllowedIPs.
type NetworkAddress struct {
	ID                    uint   `gorm:"primaryKey" json:"id"`
	ServerConfigurationID uint   `gorm:"index;not null" json:"server_configuration_id"`
	Address               string `gorm:"column:network_address;size:64" json:"network_address"`
}

func (NetworkAddress) TableName() string { return "network_addresses" }
