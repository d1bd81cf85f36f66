package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yutakm/textswap/internal/database"
	"github.com/yutakm/textswap/internal/models"
	"github.com/yutakm/textswap/internal/storage"
)

// WishlistHandler handles wishlist routes
type WishlistHandler struct {
	DB    database.DBInterface
	Store storage.ObjectStore
}

// NewWishlistHandler creates a new wishlist handler
func NewWishlistHandler(db database.DBInterface, store storage.ObjectStore) *WishlistHandler {
	return &WishlistHandler{DB: db, Store: store}
}

// Add saves a textbook to the caller's wishlist
func (h *WishlistHandler) Add(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var input models.WishlistAdd
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tb, err := h.DB.GetTextbookByID(input.TextbookID)
	if err == database.ErrTextbookNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Textbook not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if tb.OwnerID == userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot wishlist your own textbook"})
		return
	}

	entry, err := h.DB.AddWishlistEntry(userID, input.TextbookID)
	switch err {
	case nil:
	case database.ErrWishlistExists:
		c.JSON(http.StatusConflict, gin.H{"error": "Textbook already on wishlist"})
		return
	case database.ErrTextbookNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Textbook not found"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// List returns the textbooks on the caller's wishlist
func (h *WishlistHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	textbooks, err := h.DB.GetWishlistTextbooks(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.Store != nil {
		for _, tb := range textbooks {
			if tb.ImageKey == "" {
				continue
			}
			if url, err := h.Store.PresignGet(c.Request.Context(), tb.ImageKey, imageURLExpiry); err == nil {
				tb.ImageURL = url
			}
		}
	}

	c.JSON(http.StatusOK, textbooks)
}

// Remove deletes a wishlist entry. Removal is refused while the caller
// still has an active request for the textbook, so the wishlist keeps a
// handle on in-flight exchanges.
func (h *WishlistHandler) Remove(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	textbookID, err := uuid.Parse(c.Param("textbookID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid textbook ID"})
		return
	}

	active, err := h.DB.HasActiveRequest(userID, textbookID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if active {
		c.JSON(http.StatusConflict, gin.H{"error": "Withdraw your request before removing this entry"})
		return
	}

	err = h.DB.DeleteWishlistEntry(userID, textbookID)
	if err == database.ErrWishlistEntryNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wishlist entry not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Wishlist entry removed"})
}
