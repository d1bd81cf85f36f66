package models

import (
	"time"

	"github.com/google/uuid"
)

// WishlistEntry links a user to a textbook they marked as wanted.
// The (user, textbook) pair is unique.
type WishlistEntry struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	TextbookID uuid.UUID `json:"textbook_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// WishlistAdd is the payload for saving a textbook to the wishlist
type WishlistAdd struct {
	TextbookID uuid.UUID `json:"textbook_id" binding:"required"`
}
