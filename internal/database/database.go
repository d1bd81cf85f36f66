package database

import (
	"github.com/google/uuid"

	"github.com/yutakm/textswap/internal/models"
)

// DBInterface is the persistence surface the handlers depend on.
// Implemented by PostgresDB and mocked in the api tests.
type DBInterface interface {
	// User methods
	CreateUser(email, passwordHash string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id uuid.UUID) (*models.User, error)
	UpdateUserEmail(userID uuid.UUID, email string) error
	UpdateUserPassword(userID uuid.UUID, passwordHash string) error
	UpdateLastSeen(userID uuid.UUID) error

	// Textbook methods
	CreateTextbook(ownerID uuid.UUID, in models.TextbookInput) (*models.Textbook, error)
	GetTextbookByID(id uuid.UUID) (*models.Textbook, error)
	GetTextbooksByOwner(ownerID uuid.UUID) ([]*models.Textbook, error)
	SearchTextbooks(query string, excludeOwnerID uuid.UUID) ([]*models.Textbook, error)
	UpdateTextbook(id, ownerID uuid.UUID, in models.TextbookInput) (*models.Textbook, error)
	SetTextbookImage(id, ownerID uuid.UUID, imageKey string) (previousKey string, err error)
	DeleteTextbook(id, ownerID uuid.UUID) (imageKey string, err error)

	// Wishlist methods
	AddWishlistEntry(userID, textbookID uuid.UUID) (*models.WishlistEntry, error)
	GetWishlistTextbooks(userID uuid.UUID) ([]*models.Textbook, error)
	HasWishlistEntry(userID, textbookID uuid.UUID) (bool, error)
	DeleteWishlistEntry(userID, textbookID uuid.UUID) error
	HasActiveRequest(requesterID, textbookID uuid.UUID) (bool, error)

	// Request methods
	CreateRequest(requesterID, textbookID uuid.UUID) (*models.Request, error)
	GetRequestByID(id uuid.UUID) (*models.Request, error)
	GetRequestParties(id uuid.UUID) (requesterID, ownerID uuid.UUID, status models.RequestStatus, err error)
	UpdateRequestStatus(requestID, ownerID uuid.UUID, status models.RequestStatus) (*models.Request, error)
	DeleteRequest(requestID, requesterID uuid.UUID) error
	GetRequestsForOwner(ownerID uuid.UUID) ([]*models.RequestSummary, error)
	GetRequestsByRequester(requesterID uuid.UUID) ([]*models.RequestSummary, error)
	GetOpenChats(userID uuid.UUID) ([]*models.ChatSummary, error)

	// Message methods
	CreateMessage(requestID, senderID uuid.UUID, body string) (*models.Message, error)
	GetMessagesByRequest(requestID uuid.UUID) ([]*models.Message, error)
	MarkMessagesRead(requestID, readerID uuid.UUID, messageIDs []uuid.UUID) ([]*models.Message, error)

	Close() error
}
