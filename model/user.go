package model

import "time"

// 用户角色
const (
	RoleAdmin    = "admin"
	RoleDJ       = "dj"
	RoleListener = "listener"
)

// User represents an account allowed to call the control surface.
type User struct {
	ID           uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Email        string    `json:"email,omitempty" gorm:"size:255"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"` // Not exposed in API responses
	Role         string    `json:"role" gorm:"size:20;not null;default:'listener'"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleDJ, RoleListener:
		return true
	}
	return false
}
