package models

import (
	"time"

	"github.com/google/uuid"
)

// Textbook is a listing registered by its owner. ImageKey is the object
// storage key of the cover photo; clients receive a presigned ImageURL
// instead of the raw key.
type Textbook struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Grade     int       `json:"grade,omitempty"`
	ISBN      string    `json:"isbn,omitempty"`
	Details   string    `json:"details,omitempty"`
	ImageKey  string    `json:"-"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TextbookInput is the payload for creating or editing a listing
type TextbookInput struct {
	Title   string `json:"title" binding:"required,min=1,max=200"`
	Author  string `json:"author"`
	Subject string `json:"subject"`
	Grade   int    `json:"grade" binding:"min=0,max=12"`
	ISBN    string `json:"isbn"`
	Details string `json:"details"`
}
