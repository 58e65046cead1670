// Package entity defines the request and response shapes of the web layer.
package entity

// Msg is the standard API response: success flag, message text and optional object.
type Msg struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Obj     any    `json:"obj"`
}

// LoginForm is the login request.
type LoginForm struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// UserForm creates or replaces a user from the admin API.
type UserForm struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	IsAdmin  bool   `json:"isAdmin" form:"isAdmin"`
	Email    string `json:"email" form:"email"`
}

// AdminFlagForm grants or revokes admin rights of an existing user.
type AdminFlagForm struct {
	IsAdmin bool `json:"isAdmin" form:"isAdmin"`
}

// EmailForm sets the address on file of an existing user.
type EmailForm struct {
	Email string `json:"email" form:"email"`
}

// InviteForm asks for an invite link to be mailed.
type InviteForm struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
}

// ResetRequestForm asks for a password-reset link to be mailed to the
// account's address on file.
type ResetRequestForm struct {
	Username string `json:"username" form:"username"`
}

// PasswordForm completes a join or a reset.
type PasswordForm struct {
	Token    string `json:"token" form:"token"`
	Password string `json:"password" form:"password"`
	Confirm  string `json:"confirm" form:"confirm"`
}
