package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the tri-state lifecycle of an exchange request.
// A request starts in wait; the textbook owner moves it to consent or
// rejection. Consent is the sole gate that unlocks chat. There is no
// path back to wait.
type RequestStatus string

const (
	StatusWait      RequestStatus = "wait"
	StatusConsent   RequestStatus = "consent"
	StatusRejection RequestStatus = "rejection"
)

// Valid reports whether s is one of the three known states.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusWait, StatusConsent, StatusRejection:
		return true
	}
	return false
}

// Decided reports whether s is a state an owner may transition a
// request into.
func (s RequestStatus) Decided() bool {
	return s == StatusConsent || s == StatusRejection
}

// Request expresses a user's interest in obtaining a specific textbook.
type Request struct {
	ID          uuid.UUID     `json:"id"`
	RequesterID uuid.UUID     `json:"requester_id"`
	TextbookID  uuid.UUID     `json:"textbook_id"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// RequestCreate is the payload for sending a new request
type RequestCreate struct {
	TextbookID uuid.UUID `json:"textbook_id" binding:"required"`
}

// RequestStatusUpdate is the owner's accept/reject payload
type RequestStatusUpdate struct {
	Status RequestStatus `json:"status" binding:"required"`
}

// RequestSummary is a request joined with the textbook title and the
// counterpart's email, for the owner and requester listing views.
type RequestSummary struct {
	ID               uuid.UUID     `json:"id"`
	TextbookID       uuid.UUID     `json:"textbook_id"`
	TextbookTitle    string        `json:"textbook_title"`
	CounterpartEmail string        `json:"counterpart_email"`
	Status           RequestStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
}

// ChatSummary is one entry in the chat sidebar: a consented request
// with the textbook title and the other party's email resolved.
type ChatSummary struct {
	RequestID        uuid.UUID `json:"request_id"`
	TextbookID       uuid.UUID `json:"textbook_id"`
	TextbookTitle    string    `json:"textbook_title"`
	CounterpartEmail string    `json:"counterpart_email"`
}
