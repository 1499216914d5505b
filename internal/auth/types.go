package auth

import "time"

// AdminUser is an administrative account. Accounts are deactivated, never
// physically deleted, so the audit trail keeps resolving actor identities.
type AdminUser struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"displayName,omitempty"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"isActive"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	CreatedBy    string     `json:"createdBy"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
	UpdatedBy    string     `json:"updatedBy,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// Actor is the identity attached to every call into the content core. It is
// resolved by an external authentication collaborator (or the token layer in
// this package) and passed by value.
type Actor struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"isActive"`
}
