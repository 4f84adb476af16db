package domain

import (
	"time" // Timestamps

	"gorm.io/gorm" // Soft delete support
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User Model
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`                       // Primary key
	Email     string         `gorm:"size:255;uniqueIndex;not null" json:"email"` // Unique login and transfer address
	FullName  string         `gorm:"size:255" json:"full_name"`                  // Display name
	Password  string         `gorm:"not null" json:"-"`                          // Hashed password
	Role      string         `gorm:"size:16;default:user" json:"role"`           // Role: user or admin
	IsActive  bool           `gorm:"default:true" json:"is_active"`              // Inactive users cannot log in
	CreatedAt time.Time      `json:"created_at"`                                 // Creation time
	UpdatedAt time.Time      `json:"updated_at"`                                 // Last update time
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                             // Soft delete marker
}

// IsAdmin reports whether the user may review transactions
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
