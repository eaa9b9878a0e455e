package models

import "time"

// User represents a registered account. Items belong to exactly one user.
type User struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username  string     `json:"username" gorm:"uniqueIndex;type:varchar(80);not null" validate:"required,min=3,max=80"`
	Email     *string    `json:"email" gorm:"uniqueIndex;type:varchar(120)" validate:"omitempty,email"`
	Password  string     `json:"-" gorm:"type:varchar(255)" validate:"required,min=6"` // bcrypt hash once registered
	Role      string     `json:"role" gorm:"type:varchar(20);default:user"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}
