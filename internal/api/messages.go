package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yutakm/textswap/internal/database"
	"github.com/yutakm/textswap/internal/models"
	"github.com/yutakm/textswap/internal/realtime"
)

// MessageHandler handles chat message routes
type MessageHandler struct {
	DB   database.DBInterface
	Feed realtime.Feed
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(db database.DBInterface, feed realtime.Feed) *MessageHandler {
	return &MessageHandler{DB: db, Feed: feed}
}

func messageKeys(msg *models.Message) map[string]string {
	return map[string]string{
		"id":         msg.ID.String(),
		"request_id": msg.RequestID.String(),
	}
}

// Send appends a chat message to a consented request. Blank bodies are
// rejected before any write happens.
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var input models.MessageSend
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body := strings.TrimSpace(input.Body)
	if body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		return
	}

	msg, err := h.DB.CreateMessage(input.RequestID, userID, body)
	switch err {
	case nil:
	case database.ErrRequestNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return
	case database.ErrChatNotOpen:
		c.JSON(http.StatusForbidden, gin.H{"error": "Chat is locked until the owner consents"})
		return
	case database.ErrNotParticipant:
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a party to this request"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.Feed.Publish(realtime.NewInsert(realtime.TableMessage, messageKeys(msg), msg))

	c.JSON(http.StatusCreated, msg)
}

// List returns all messages for a request, oldest first. Either party
// may read the history regardless of status; sending is what consent
// gates.
func (h *MessageHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	requestID, err := uuid.Parse(c.Query("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}

	requesterID, ownerID, _, err := h.DB.GetRequestParties(requestID)
	if err == database.ErrRequestNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if userID != requesterID && userID != ownerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a party to this request"})
		return
	}

	messages, err := h.DB.GetMessagesByRequest(requestID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// MarkRead flips is_read on the given messages. Only messages the
// caller received are touched, and repeating the call is a no-op, so
// clients can fire it on every render.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var input models.MarkReadInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requesterID, ownerID, _, err := h.DB.GetRequestParties(input.RequestID)
	if err == database.ErrRequestNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if userID != requesterID && userID != ownerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a party to this request"})
		return
	}

	updated, err := h.DB.MarkMessagesRead(input.RequestID, userID, input.MessageIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for _, msg := range updated {
		h.Feed.Publish(realtime.NewUpdate(realtime.TableMessage, messageKeys(msg), nil, msg))
	}

	c.JSON(http.StatusOK, gin.H{"updated": len(updated)})
}
