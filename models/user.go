package models

import "mailsprint/store"

// User is an account holder. Everything a user creates is scoped to their id.
type User struct {
	store.Record

	Email        string `json:"email"`
	PasswordHash string `json:"password_hash,omitempty"`
	FullName     string `json:"full_name,omitempty"`
	Company      string `json:"company,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
}

// Sanitize strips the credential hash before the record leaves the API.
func (u *User) Sanitize() {
	u.PasswordHash = ""
}
