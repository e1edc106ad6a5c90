package entity

import "time"

type Role string

const (
	RoleNone  Role = ""
	RoleAdmin Role = "admin"
)

// User is owned by the record store's identity subsystem; this service only
// creates users through sign-up and reads the role.
type User struct {
	ID           string    `json:"objectId" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	Email        string    `json:"email,omitempty" bson:"email,omitempty"`
	Role         Role      `json:"role,omitempty" bson:"role,omitempty"`
	SessionToken string    `json:"-" bson:"session_token"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"-" bson:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Session is the result of a sign-up: the new user's id and a usable session token.
type Session struct {
	UserID       string `json:"objectId"`
	SessionToken string `json:"sessionToken"`
}
