package model

import "time"

// Profile is the application's own user record. Its ID always equals the
// ID of the matching auth user.
type Profile struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Username  string    `json:"username" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName pins the gorm table name.
func (Profile) TableName() string {
	return "profiles"
}

// Identity is a login identity attached to an auth user.
type Identity struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// AuthUser is the user record owned by the auth subsystem.
type AuthUser struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Role        string     `json:"role,omitempty"`
	Identities  []Identity `json:"identities"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Session is issued by the auth subsystem and augmented with the
// profile username before it is returned to clients.
type Session struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	User         *AuthUser `json:"user,omitempty"`
	Username     string    `json:"username,omitempty"`
}
