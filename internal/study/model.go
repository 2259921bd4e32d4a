package study

import "time"

// Flashcard is a revision card owned by a user and optionally shared.
type Flashcard struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	OwnerID   string    `gorm:"index" json:"owner"`
	Title     string    `json:"title"`
	Front     string    `json:"front"`
	Back      string    `json:"back"`
	CreatedAt time.Time `json:"createdAt"`

	SharedWith []FlashcardShare `gorm:"foreignKey:FlashcardID" json:"-"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (Flashcard) TableName() string {
	return "flashcards"
}

// FlashcardShare grants one user read access to a flashcard.
type FlashcardShare struct {
	FlashcardID string `gorm:"primaryKey"`
	UserID      string `gorm:"primaryKey"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (FlashcardShare) TableName() string {
	return "flashcard_shares"
}

// Resource is a study material: an uploaded file or an external link.
type Resource struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	OwnerID     string    `gorm:"index" json:"owner"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Tags        string    `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (Resource) TableName() string {
	return "resources"
}
