package models

import (
	"time"
)

type Role string

const (
	RoleChatUser   Role = "ChatUser"
	RoleGroupAdmin Role = "GroupAdmin"
	RoleSuperAdmin Role = "SuperAdmin"
)

func ParseRole(raw string) (Role, bool) {
	switch r := Role(raw); r {
	case RoleChatUser, RoleGroupAdmin, RoleSuperAdmin:
		return r, true
	}
	return "", false
}

type User struct {
	ID           ID     `gorm:"type:varchar(24);primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	AvatarURL    string
	Roles        []Role `gorm:"type:text;serializer:json"`
	Groups       IDs    `gorm:"type:text;serializer:json"`
	Valid        bool   `gorm:"not null;default:false"`
	LastSeenAt   time.Time
	CreatedAt    time.Time
}

func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AddRole appends role. Roles are additive and never removed automatically.
func (u *User) AddRole(role Role) error {
	if u.HasRole(role) {
		return ErrAlreadyHasRole
	}
	u.Roles = append(u.Roles, role)
	return nil
}
