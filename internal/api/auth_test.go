package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/yutakm/textswap/internal/auth"
	"github.com/yutakm/textswap/internal/database"
	"github.com/yutakm/textswap/internal/models"
)

func setupAuthTest(t *testing.T) (*gin.Engine, *MockDB, uuid.UUID) {
	auth.InitJWTKey([]byte("test-secret-key"))

	router := newTestRouter(t)
	mockDB := new(MockDB)
	userID := uuid.New()

	handler := NewAuthHandler(mockDB)

	router.POST("/api/auth/register", handler.Register)
	router.POST("/api/auth/login", handler.Login)

	group := router.Group("/api", authAs(userID))
	group.GET("/auth/me", handler.GetMe)
	group.PUT("/auth/email", handler.UpdateEmail)
	group.PUT("/auth/password", handler.UpdatePassword)

	return router, mockDB, userID
}

func TestRegister(t *testing.T) {
	router, mockDB, _ := setupAuthTest(t)

	t.Run("creates an account", func(t *testing.T) {
		user := &models.User{ID: uuid.New(), Email: "alice@example.com"}

		mockDB.On("CreateUser", "alice@example.com", mock.AnythingOfType("string")).
			Return(user, nil).Once()

		w := postJSON(router, "POST", "/api/auth/register", map[string]interface{}{
			"email":    "alice@example.com",
			"password": "password123",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "alice@example.com")
		assert.NotContains(t, w.Body.String(), "password")
		mockDB.AssertExpectations(t)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		mockDB.On("CreateUser", "alice@example.com", mock.AnythingOfType("string")).
			Return(nil, database.ErrUserAlreadyExists).Once()

		w := postJSON(router, "POST", "/api/auth/register", map[string]interface{}{
			"email":    "alice@example.com",
			"password": "password123",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		mockDB.AssertExpectations(t)
	})

	t.Run("short password is rejected by binding", func(t *testing.T) {
		w := postJSON(router, "POST", "/api/auth/register", map[string]interface{}{
			"email":    "bob@example.com",
			"password": "123",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLogin(t *testing.T) {
	router, mockDB, _ := setupAuthTest(t)

	hash, err := auth.HashPassword("password123")
	assert.NoError(t, err)

	user := &models.User{
		ID:           uuid.New(),
		Email:        "alice@example.com",
		PasswordHash: hash,
	}

	t.Run("valid credentials get a token", func(t *testing.T) {
		mockDB.On("GetUserByEmail", "alice@example.com").Return(user, nil).Once()
		mockDB.On("UpdateLastSeen", user.ID).Return(nil).Once()

		w := postJSON(router, "POST", "/api/auth/login", map[string]interface{}{
			"email":    "alice@example.com",
			"password": "password123",
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response["token"])

		claims, err := auth.ValidateToken(response["token"].(string))
		assert.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.UserID)
		assert.Equal(t, user.Email, claims.Email)

		mockDB.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		mockDB.On("GetUserByEmail", "alice@example.com").Return(user, nil).Once()

		w := postJSON(router, "POST", "/api/auth/login", map[string]interface{}{
			"email":    "alice@example.com",
			"password": "wrong-password",
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown email gets the same answer as a wrong password", func(t *testing.T) {
		mockDB.On("GetUserByEmail", "nobody@example.com").
			Return(nil, database.ErrUserNotFound).Once()

		w := postJSON(router, "POST", "/api/auth/login", map[string]interface{}{
			"email":    "nobody@example.com",
			"password": "password123",
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid credentials")
	})

	t.Run("login survives a failed last_seen write", func(t *testing.T) {
		mockDB.On("GetUserByEmail", "alice@example.com").Return(user, nil).Once()
		mockDB.On("UpdateLastSeen", user.ID).Return(assert.AnError).Once()

		w := postJSON(router, "POST", "/api/auth/login", map[string]interface{}{
			"email":    "alice@example.com",
			"password": "password123",
		})

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestUpdateEmail(t *testing.T) {
	router, mockDB, userID := setupAuthTest(t)

	t.Run("changes the address", func(t *testing.T) {
		mockDB.On("UpdateUserEmail", userID, "new@example.com").Return(nil).Once()

		w := postJSON(router, "PUT", "/api/auth/email", map[string]interface{}{
			"email": "new@example.com",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		mockDB.AssertExpectations(t)
	})

	t.Run("taken address conflicts", func(t *testing.T) {
		mockDB.On("UpdateUserEmail", userID, "taken@example.com").
			Return(database.ErrUserAlreadyExists).Once()

		w := postJSON(router, "PUT", "/api/auth/email", map[string]interface{}{
			"email": "taken@example.com",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		mockDB.AssertExpectations(t)
	})
}

func TestUpdatePassword(t *testing.T) {
	router, mockDB, userID := setupAuthTest(t)

	hash, err := auth.HashPassword("current-pass")
	assert.NoError(t, err)

	user := &models.User{ID: userID, Email: "alice@example.com", PasswordHash: hash}

	t.Run("verifies the current password first", func(t *testing.T) {
		mockDB.On("GetUserByID", userID).Return(user, nil).Once()
		mockDB.On("UpdateUserPassword", userID, mock.AnythingOfType("string")).
			Return(nil).Once()

		w := postJSON(router, "PUT", "/api/auth/password", map[string]interface{}{
			"current_password": "current-pass",
			"new_password":     "brand-new-pass",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		mockDB.AssertExpectations(t)
	})

	t.Run("wrong current password", func(t *testing.T) {
		mockDB.On("GetUserByID", userID).Return(user, nil).Once()

		w := postJSON(router, "PUT", "/api/auth/password", map[string]interface{}{
			"current_password": "not-it",
			"new_password":     "brand-new-pass",
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockDB.AssertNotCalled(t, "UpdateUserPassword")
	})
}

func TestGetMe(t *testing.T) {
	router, mockDB, userID := setupAuthTest(t)

	user := &models.User{ID: userID, Email: "alice@example.com"}
	mockDB.On("GetUserByID", userID).Return(user, nil).Once()

	req, _ := http.NewRequest("GET", "/api/auth/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@example.com")
	mockDB.AssertExpectations(t)
}
