package model

// User is a stored credential. Usernames are unique; PasswordHash is a bcrypt hash.
// Email is the address on file for password resets and may be empty.
type User struct {
	Id           int    `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"column:password_hash;not null"`
	IsAdmin      bool   `json:"isAdmin" gorm:"column:is_admin;not null;default:false"`
	Email        string `json:"email" gorm:"column:email;not null;default:''"`
}

// UserView is the listing projection of a User. It never carries the hash.
type UserView struct {
	Id       int    `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
	Email    string `json:"email,omitempty"`
}

func (u *User) View() UserView {
	return UserView{Id: u.Id, Username: u.Username, IsAdmin: u.IsAdmin, Email: u.Email}
}
