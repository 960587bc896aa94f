package models

import "time"

// VpnDevice — устройство пользователя. Ключи генерируются на сервере,
// поэтому приватный ключ хранится здесь, но наружу в JSON не отдаётся.
type VpnDevice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID      uint   `gorm:"index;not null" json:"user_id"`
	User        *User  `json:"user,omitempty"`
	Description string `gorm:"size:255" json:"description"`
	PrivateKey  string `gorm:"column:private_key;size:64;not null" json:"-"`
	PublicKey   string `gorm:"column:public_key;size:64;not null" json:"public_key"`
	Node        bool   `gorm:"not null;default:false" json:"node"`

	IPAllocation *IPAllocation `gorm:"foreignKey:VpnDeviceID;constraint:OnDelete:CASCADE" json:"ip_allocation,omitempty"`
}

func (VpnDevice) TableName() string { return "vpn_devices" }

// IPAddress — выделенный адрес или "" если аллокации нет.
func (d *VpnDevice) IPAddress() string {
	if d == nil || d.IPAllocation == nil {
		return ""
	}
	return d.IPAllocation.IPAddress
}

// IPAllocation — адрес устройства; ip_address уникален глобально.
type IPAllocation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	VpnDeviceID uint      `gorm:"uniqueIndex;not null" json:"vpn_device_id"`
	IPAddress   string    `gorm:"column:ip_address;size:45;uniqueIndex;not null" json:"ip_address"`
}

func (IPAllocation) TableName() string { return "ip_allocations" }
