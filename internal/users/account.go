package users

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role gates access to the card workflows.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFaculty Role = "faculty"
	RoleStudent Role = "student"
)

// ErrUnknownRole indicates a role outside admin, faculty and student.
var ErrUnknownRole = errors.New("users: unknown role")

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	switch role := Role(normalize(strings.ToLower(raw))); role {
	case RoleAdmin, RoleFaculty, RoleStudent:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Account is a local login with a bcrypt password hash.
type Account struct {
	UserID       string    `gorm:"column:user_id;primaryKey;size:190"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	DisplayName  string    `gorm:"column:display_name;size:320"`
	Role         Role      `gorm:"column:role;size:32;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	LastSeenAt   time.Time `gorm:"column:last_seen_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing accounts.
func (Account) TableName() string {
	return "user_accounts"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(normalize(value))
}
