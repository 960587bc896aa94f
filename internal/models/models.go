package models

import "time"

// User — владелец устройств. Аутентификация живёт снаружи, здесь только то,
// что нужно для привязки устройств и комментария в конфиге сервера.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email  string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name   string `gorm:"size:255" json:"name"`
	Admin  bool   `gorm:"not null" json:"admin"`
	Active bool   `gorm:"not null" json:"active"`

	VpnDevices []VpnDevice `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string { return "users" }
