package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/chat"
	"github.com/lalith-99/agencychat/internal/middleware"
	"github.com/lalith-99/agencychat/internal/models"
)

type MessageService interface {
	History(ctx context.Context, channelID uuid.UUID, page models.Page) ([]models.Message, error)
	Send(ctx context.Context, req chat.SendRequest) (chat.SendResult, error)
}

type MessageHandler struct {
	svc    MessageService
	logger *zap.Logger
}

func NewMessageHandler(svc MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// List handles GET /v1/channels/:id/messages[?limit=N&before=<message id>]
//
// Without parameters the whole history is returned, oldest first. limit
// keeps the newest N (capped at chat.MaxPageLimit); before pages further
// back using the id of the oldest message already seen.
func (h *MessageHandler) List(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}

	var page models.Page
	if l := c.Query("limit"); l != "" {
		page.Limit, err = strconv.Atoi(l)
		if err != nil || page.Limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
	}
	page.Before = c.Query("before")

	messages, err := h.svc.History(c.Request.Context(), channelID, page)
	if err != nil {
		respondError(c, h.logger, "list messages", err)
		return
	}

	out := make([]models.MessageSummary, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Summary())
	}
	c.JSON(http.StatusOK, out)
}

type createMessageRequest struct {
	UserID          uuid.UUID `json:"user_id"`
	Content         string    `json:"content" binding:"required"`
	ParentMessageID *string   `json:"parent_message_id"`
	Name            string    `json:"name"`
}

// Create handles POST /v1/channels/:id/messages. Unlike the socket event,
// every failure is returned to the caller.
func (h *MessageHandler) Create(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if authed := middleware.GetUserID(c); authed != uuid.Nil {
		if req.UserID != uuid.Nil && req.UserID != authed {
			c.JSON(http.StatusForbidden, gin.H{"error": "user_id does not match token"})
			return
		}
		req.UserID = authed
	}
	if req.Name == "" {
		req.Name = middleware.GetName(c)
	}

	res, err := h.svc.Send(c.Request.Context(), chat.SendRequest{
		ChannelID:       channelID,
		UserID:          req.UserID,
		Content:         req.Content,
		ParentMessageID: req.ParentMessageID,
		Name:            req.Name,
	})
	if err != nil {
		respondError(c, h.logger, "create message", err)
		return
	}
	c.JSON(http.StatusCreated, res.Message)
}
