package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one chat message tied to a consented request. Messages are
// append-only; the only mutation is the receiver flipping IsRead.
type Message struct {
	ID         uuid.UUID  `json:"id"`
	RequestID  uuid.UUID  `json:"request_id"`
	SenderID   uuid.UUID  `json:"sender_id"`
	ReceiverID uuid.UUID  `json:"receiver_id"`
	Body       string     `json:"message"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// MessageSend is the payload for posting a chat message
type MessageSend struct {
	RequestID uuid.UUID `json:"request_id" binding:"required"`
	Body      string    `json:"message" binding:"required"`
}

// MarkReadInput is the receiver's bulk read-receipt payload
type MarkReadInput struct {
	RequestID  uuid.UUID   `json:"request_id" binding:"required"`
	MessageIDs []uuid.UUID `json:"message_ids" binding:"required,min=1"`
}
