// Package model contains the database models of the credential and token store.
package model

import "time"

type TokenType string

const (
	TokenInvite        TokenType = "invite"
	TokenPasswordReset TokenType = "password_reset"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	switch t {
	case TokenInvite, TokenPasswordReset:
		return true
	}
	return false
}

// Token is a single-use bearer token. Username is the owner and is
// not a foreign key: invite owners do not have a users row yet. Email is the
// address an invite was sent to; it becomes the new account's address on file.
type Token struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	Token     string    `json:"-" gorm:"uniqueIndex;not null"`
	Username  string    `json:"username" gorm:"index;not null"`
	TokenType TokenType `json:"tokenType" gorm:"column:token_type;not null"`
	Email     string    `json:"-" gorm:"column:email;not null;default:''"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"index;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
}

// Expired reports whether the token is no longer valid at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
