package domain

import "time"

// Role enumerates the principals the service recognizes.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEngineer Role = "ENGINEER"
	RoleClient   Role = "CLIENT"
)

// Account is the domain model for anyone who can authenticate: back-office
// admins, field engineers, and client contacts.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Company      string
	TeamName     string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the account has back-office authority.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// IsEngineer reports whether the account is a field engineer.
func (a *Account) IsEngineer() bool {
	return a != nil && a.Role == RoleEngineer
}
