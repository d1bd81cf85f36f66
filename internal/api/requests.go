package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yutakm/textswap/internal/database"
	"github.com/yutakm/textswap/internal/models"
	"github.com/yutakm/textswap/internal/realtime"
)

// RequestHandler handles exchange request routes
type RequestHandler struct {
	DB   database.DBInterface
	Feed realtime.Feed
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(db database.DBInterface, feed realtime.Feed) *RequestHandler {
	return &RequestHandler{DB: db, Feed: feed}
}

func requestKeys(req *models.Request) map[string]string {
	return map[string]string{
		"id":           req.ID.String(),
		"textbook_id":  req.TextbookID.String(),
		"requester_id": req.RequesterID.String(),
	}
}

// Create sends a new request for a textbook. The request starts in wait
// and notifies anyone watching the textbook's request stream.
func (h *RequestHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var input models.RequestCreate
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
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot request your own textbook"})
		return
	}

	req, err := h.DB.CreateRequest(userID, input.TextbookID)
	switch err {
	case nil:
	case database.ErrDuplicateRequest:
		c.JSON(http.StatusConflict, gin.H{"error": "Request already exists for this textbook"})
		return
	case database.ErrTextbookNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Textbook not found"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.Feed.Publish(realtime.NewInsert(realtime.TableRequest, requestKeys(req), req))

	c.JSON(http.StatusCreated, req)
}

// UpdateStatus is the owner's accept/reject action. Requesters watching
// the request stream see the transition as an UPDATE event.
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	requestID, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}

	var input models.RequestStatusUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !input.Status.Decided() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Status must be consent or rejection"})
		return
	}

	req, err := h.DB.UpdateRequestStatus(requestID, userID, input.Status)
	switch err {
	case nil:
	case database.ErrRequestNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return
	case database.ErrNotOwner:
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the textbook owner can decide a request"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.Feed.Publish(realtime.NewUpdate(realtime.TableRequest, requestKeys(req), nil, req))

	c.JSON(http.StatusOK, req)
}

// Withdraw deletes the caller's own waiting request
func (h *RequestHandler) Withdraw(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	requestID, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}

	// Load the row first so the DELETE event can carry it.
	req, err := h.DB.GetRequestByID(requestID)
	if err == database.ErrRequestNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	err = h.DB.DeleteRequest(requestID, userID)
	switch err {
	case nil:
	case database.ErrRequestNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return
	case database.ErrNotParticipant:
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the requester can withdraw a request"})
		return
	case database.ErrRequestDecided:
		c.JSON(http.StatusConflict, gin.H{"error": "Request has already been decided"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.Feed.Publish(realtime.NewDelete(realtime.TableRequest, requestKeys(req), req))

	c.JSON(http.StatusOK, gin.H{"message": "Request withdrawn"})
}

// Received lists requests on the caller's textbooks, for the owner's
// accept/reject view. Clients filter status = wait for actionables.
func (h *RequestHandler) Received(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	summaries, err := h.DB.GetRequestsForOwner(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// Sent lists the caller's own requests with their current status
func (h *RequestHandler) Sent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	summaries, err := h.DB.GetRequestsByRequester(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// Chats enumerates the caller's unlocked chats: consented requests from
// both sides, with the counterpart's email resolved.
func (h *RequestHandler) Chats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	chats, err := h.DB.GetOpenChats(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, chats)
}
