package users

import "strings"

// Role enumerates the access levels a user may hold.
type Role string

const (
	// RoleStudent is the default role assigned at registration.
	RoleStudent Role = "student"
	// RoleTeacher marks an instructor account.
	RoleTeacher Role = "teacher"
	// RoleAdmin grants moderation rights over the whole catalog.
	RoleAdmin Role = "admin"
)

// ParseRole maps raw input onto a known role, defaulting to student.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleTeacher:
		return RoleTeacher
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleStudent
	}
}

// User captures a registered account in the credential store.
type User struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Username       string `gorm:"column:username;size:190;not null;uniqueIndex"`
	PasswordDigest string `gorm:"column:password_digest;size:190;not null"`
	Email          string `gorm:"column:email;size:320;not null"`
	Role           Role   `gorm:"column:role;size:32;not null;default:student"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
