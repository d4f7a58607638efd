package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/chat"
)

// ChatHandler serves buyer and seller chat endpoints.
type ChatHandler struct {
	chat *chat.Service
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(chatService *chat.Service) *ChatHandler {
	return &ChatHandler{chat: chatService}
}

type upsertThreadRequest struct {
	ListingID uint64 `json:"listingId"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// UpsertThread opens or returns the caller's thread on a listing.
func (h *ChatHandler) UpsertThread(c *gin.Context) {
	var body upsertThreadRequest
	if !BindJSON(c, &body) {
		return
	}
	if body.ListingID == 0 {
		apperr.Write(c, apperr.ValidationFields("validation failed", map[string]string{"listingId": "listingId is required"}))
		return
	}
	thread, errUpsert := h.chat.UpsertThread(c.Request.Context(), CurrentUserID(c), body.ListingID)
	if errUpsert != nil {
		apperr.Write(c, errUpsert)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": PresentThread(*thread)})
}

// ListThreads returns the caller's threads, most recent activity first.
func (h *ChatHandler) ListThreads(c *gin.Context) {
	views, errList := h.chat.ListThreads(c.Request.Context(), CurrentUserID(c))
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": presentThreadViews(views)})
}

// ListMessages returns a thread's messages oldest first.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	threadID, ok := ParseID(c, "id")
	if !ok {
		return
	}
	messages, errList := h.chat.ListMessages(c.Request.Context(), CurrentUserID(c), threadID)
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	out := make([]gin.H, 0, len(messages))
	for _, msg := range messages {
		out = append(out, presentMessage(msg))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// SendMessage appends a message to a thread.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	threadID, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var body sendMessageRequest
	if !BindJSON(c, &body) {
		return
	}
	msg, errSend := h.chat.SendMessage(c.Request.Context(), CurrentUserID(c), threadID, body.Content)
	if errSend != nil {
		apperr.Write(c, errSend)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": presentMessage(*msg)})
}
