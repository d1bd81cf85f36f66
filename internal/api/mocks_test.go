package api

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/yutakm/textswap/internal/models"
	"github.com/yutakm/textswap/internal/realtime"
)

// MockDB implements the DBInterface for testing
type MockDB struct {
	mock.Mock
}

// User methods

func (m *MockDB) CreateUser(email, passwordHash string) (*models.User, error) {
	args := m.Called(email, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDB) GetUserByEmail(email string) (*models.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDB) GetUserByID(id uuid.UUID) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDB) UpdateUserEmail(userID uuid.UUID, email string) error {
	args := m.Called(userID, email)
	return args.Error(0)
}

func (m *MockDB) UpdateUserPassword(userID uuid.UUID, passwordHash string) error {
	args := m.Called(userID, passwordHash)
	return args.Error(0)
}

func (m *MockDB) UpdateLastSeen(userID uuid.UUID) error {
	args := m.Called(userID)
	return args.Error(0)
}

// Textbook methods

func (m *MockDB) CreateTextbook(ownerID uuid.UUID, in models.TextbookInput) (*models.Textbook, error) {
	args := m.Called(ownerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Textbook), args.Error(1)
}

func (m *MockDB) GetTextbookByID(id uuid.UUID) (*models.Textbook, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Textbook), args.Error(1)
}

func (m *MockDB) GetTextbooksByOwner(ownerID uuid.UUID) ([]*models.Textbook, error) {
	args := m.Called(ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Textbook), args.Error(1)
}

func (m *MockDB) SearchTextbooks(query string, excludeOwnerID uuid.UUID) ([]*models.Textbook, error) {
	args := m.Called(query, excludeOwnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Textbook), args.Error(1)
}

func (m *MockDB) UpdateTextbook(id, ownerID uuid.UUID, in models.TextbookInput) (*models.Textbook, error) {
	args := m.Called(id, ownerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Textbook), args.Error(1)
}

func (m *MockDB) SetTextbookImage(id, ownerID uuid.UUID, imageKey string) (string, error) {
	args := m.Called(id, ownerID, imageKey)
	return args.String(0), args.Error(1)
}

func (m *MockDB) DeleteTextbook(id, ownerID uuid.UUID) (string, error) {
	args := m.Called(id, ownerID)
	return args.String(0), args.Error(1)
}

// Wishlist methods

func (m *MockDB) AddWishlistEntry(userID, textbookID uuid.UUID) (*models.WishlistEntry, error) {
	args := m.Called(userID, textbookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WishlistEntry), args.Error(1)
}

func (m *MockDB) GetWishlistTextbooks(userID uuid.UUID) ([]*models.Textbook, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Textbook), args.Error(1)
}

func (m *MockDB) HasWishlistEntry(userID, textbookID uuid.UUID) (bool, error) {
	args := m.Called(userID, textbookID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDB) DeleteWishlistEntry(userID, textbookID uuid.UUID) error {
	args := m.Called(userID, textbookID)
	return args.Error(0)
}

func (m *MockDB) HasActiveRequest(requesterID, textbookID uuid.UUID) (bool, error) {
	args := m.Called(requesterID, textbookID)
	return args.Bool(0), args.Error(1)
}

// Request methods

func (m *MockDB) CreateRequest(requesterID, textbookID uuid.UUID) (*models.Request, error) {
	args := m.Called(requesterID, textbookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Request), args.Error(1)
}

func (m *MockDB) GetRequestByID(id uuid.UUID) (*models.Request, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Request), args.Error(1)
}

func (m *MockDB) GetRequestParties(id uuid.UUID) (uuid.UUID, uuid.UUID, models.RequestStatus, error) {
	args := m.Called(id)
	return args.Get(0).(uuid.UUID), args.Get(1).(uuid.UUID), args.Get(2).(models.RequestStatus), args.Error(3)
}

func (m *MockDB) UpdateRequestStatus(requestID, ownerID uuid.UUID, status models.RequestStatus) (*models.Request, error) {
	args := m.Called(requestID, ownerID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Request), args.Error(1)
}

func (m *MockDB) DeleteRequest(requestID, requesterID uuid.UUID) error {
	args := m.Called(requestID, requesterID)
	return args.Error(0)
}

func (m *MockDB) GetRequestsForOwner(ownerID uuid.UUID) ([]*models.RequestSummary, error) {
	args := m.Called(ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RequestSummary), args.Error(1)
}

func (m *MockDB) GetRequestsByRequester(requesterID uuid.UUID) ([]*models.RequestSummary, error) {
	args := m.Called(requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RequestSummary), args.Error(1)
}

func (m *MockDB) GetOpenChats(userID uuid.UUID) ([]*models.ChatSummary, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ChatSummary), args.Error(1)
}

// Message methods

func (m *MockDB) CreateMessage(requestID, senderID uuid.UUID, body string) (*models.Message, error) {
	args := m.Called(requestID, senderID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockDB) GetMessagesByRequest(requestID uuid.UUID) ([]*models.Message, error) {
	args := m.Called(requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

func (m *MockDB) MarkMessagesRead(requestID, readerID uuid.UUID, messageIDs []uuid.UUID) ([]*models.Message, error) {
	args := m.Called(requestID, readerID, messageIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

func (m *MockDB) Close() error {
	args := m.Called()
	return args.Error(0)
}

// recordingFeed captures published change events for assertions
type recordingFeed struct {
	events []realtime.ChangeEvent
}

func (f *recordingFeed) Publish(ev realtime.ChangeEvent) {
	f.events = append(f.events, ev)
}

// authAs returns middleware that injects the given user into the
// context, standing in for the JWT auth middleware.
func authAs(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return gin.New()
}
