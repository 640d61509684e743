package users

import "time"

// User represents a platform member account for management.
type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	IsAdmin     bool      `json:"is_admin"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListRequest filters and pages the user directory.
type ListRequest struct {
	Search   string
	IsActive *bool
	Page     int
	PerPage  int
}
