package model

import (
	"time"
)

type UserRole string

const (
	RoleMember UserRole = "member"
	RoleAdmin  UserRole = "admin"
)

// swagger:model User
type User struct {
	UUIDBase
	Name     string    `gorm:"size:100;not null" json:"name"`
	Email    string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password string    `gorm:"size:100;not null" json:"-"`
	Role     UserRole  `gorm:"size:16;default:'member'" json:"role"`
	Points   int       `gorm:"default:0" json:"points"` // 徽章累计积分
	Avatar   string    `gorm:"size:255" json:"avatar"`
	Disabled bool      `gorm:"default:false" json:"disabled"`
	LastSeen time.Time `json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
