package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yutakm/textswap/internal/database"
	"github.com/yutakm/textswap/internal/logger"
	"github.com/yutakm/textswap/internal/models"
	"github.com/yutakm/textswap/internal/storage"
)

// Detail view variants: which actions the client should expose for a
// textbook depends on the viewer's relationship to it.
const (
	VariantOwner      = "owner"
	VariantBrowsing   = "browsing"
	VariantWishlisted = "wishlisted"
)

const imageURLExpiry = time.Hour
const maxImageSize = 10 << 20 // 10 MiB

var tbLog = logger.New("textbooks")

// TextbookHandler handles listing routes
type TextbookHandler struct {
	DB    database.DBInterface
	Store storage.ObjectStore
}

// NewTextbookHandler creates a new textbook handler
func NewTextbookHandler(db database.DBInterface, store storage.ObjectStore) *TextbookHandler {
	return &TextbookHandler{DB: db, Store: store}
}

// attachImageURL resolves the stored image key to a presigned URL.
// A failed presign leaves the listing usable without its image.
func (h *TextbookHandler) attachImageURL(c *gin.Context, tb *models.Textbook) {
	if tb.ImageKey == "" || h.Store == nil {
		return
	}
	url, err := h.Store.PresignGet(c.Request.Context(), tb.ImageKey, imageURLExpiry)
	if err != nil {
		tbLog.Warn("Failed to presign image for textbook %s: %v", tb.ID, err)
		return
	}
	tb.ImageURL = url
}

func (h *TextbookHandler) attachImageURLs(c *gin.Context, textbooks []*models.Textbook) {
	for _, tb := range textbooks {
		h.attachImageURL(c, tb)
	}
}

// Create registers a new textbook owned by the caller
func (h *TextbookHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var input models.TextbookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tb, err := h.DB.CreateTextbook(userID, input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, tb)
}

// Mine lists the caller's own textbooks, newest first
func (h *TextbookHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	textbooks, err := h.DB.GetTextbooksByOwner(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.attachImageURLs(c, textbooks)
	c.JSON(http.StatusOK, textbooks)
}

// Search lists other users' textbooks matching the q parameter across
// title, author and subject. An empty q returns everything browsable.
func (h *TextbookHandler) Search(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	textbooks, err := h.DB.SearchTextbooks(c.Query("q"), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.attachImageURLs(c, textbooks)
	c.JSON(http.StatusOK, textbooks)
}

// Get returns one textbook plus the view variant for the caller:
// owner, wishlisted or browsing. The variant decides which actions
// (edit/delete, request/withdraw, add-to-wishlist) the client renders.
func (h *TextbookHandler) Get(c *gin.Context) {
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

	tb, err := h.DB.GetTextbookByID(textbookID)
	if err == database.ErrTextbookNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Textbook not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.attachImageURL(c, tb)

	variant := VariantBrowsing
	requested := false
	if tb.OwnerID == userID {
		variant = VariantOwner
	} else {
		wishlisted, err := h.DB.HasWishlistEntry(userID, textbookID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if wishlisted {
			variant = VariantWishlisted
		}

		requested, err = h.DB.HasActiveRequest(userID, textbookID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"textbook":  tb,
		"variant":   variant,
		"requested": requested,
	})
}

// Update edits a textbook. Owner only.
func (h *TextbookHandler) Update(c *gin.Context) {
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

	var input models.TextbookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tb, err := h.DB.UpdateTextbook(textbookID, userID, input)
	switch err {
	case nil:
	case database.ErrTextbookNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Textbook not found"})
		return
	case database.ErrNotOwner:
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can edit a textbook"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.attachImageURL(c, tb)
	c.JSON(http.StatusOK, tb)
}

// Delete removes a textbook and its stored image. Owner only. Requests
// and messages referencing the textbook are removed by the database
// cascade.
func (h *TextbookHandler) Delete(c *gin.Context) {
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

	imageKey, err := h.DB.DeleteTextbook(textbookID, userID)
	switch err {
	case nil:
	case database.ErrTextbookNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Textbook not found"})
		return
	case database.ErrNotOwner:
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can delete a textbook"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if imageKey != "" && h.Store != nil {
		if err := h.Store.Delete(c.Request.Context(), imageKey); err != nil {
			// The row is already gone; losing the object is the lesser
			// failure and gets logged rather than surfaced.
			tbLog.Warn("Failed to delete image %s: %v", imageKey, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Textbook deleted"})
}

// UploadImage stores a cover image for a textbook and replaces any
// previous one. Owner only.
func (h *TextbookHandler) UploadImage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image storage is not configured"})
		return
	}

	textbookID, err := uuid.Parse(c.Param("textbookID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid textbook ID"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing image file"})
		return
	}
	if file.Size > maxImageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image too large"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read image"})
		return
	}
	defer src.Close()

	key := storage.ImageKey(userID, file.Filename)
	contentType := file.Header.Get("Content-Type")

	if err := h.Store.Put(c.Request.Context(), key, src, file.Size, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store image"})
		return
	}

	previousKey, err := h.DB.SetTextbookImage(textbookID, userID, key)
	switch err {
	case nil:
	case database.ErrTextbookNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Textbook not found"})
		return
	case database.ErrNotOwner:
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can upload an image"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if previousKey != "" && previousKey != key {
		if err := h.Store.Delete(c.Request.Context(), previousKey); err != nil {
			tbLog.Warn("Failed to delete replaced image %s: %v", previousKey, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"image_key": key})
}
