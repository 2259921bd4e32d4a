package users

import "time"

// User is a registered account.
type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	CreatedAt    time.Time
}

// TableName pins the table name independent of gorm pluralization rules.
func (User) TableName() string {
	return "users"
}

// Public is the externally visible projection of a user record.
type Public struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Public returns the projection of the user that is safe to serialize.
func (u User) Public() Public {
	return Public{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}
