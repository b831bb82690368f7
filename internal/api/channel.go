package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/chat"
	"github.com/lalith-99/agencychat/internal/middleware"
	"github.com/lalith-99/agencychat/internal/models"
)

// ChannelService is the channel directory as the HTTP layer sees it.
type ChannelService interface {
	ListChannelsForUser(ctx context.Context, userID uuid.UUID) ([]models.ChannelSummary, error)
	CreateOrGetChannel(ctx context.Context, req chat.CreateChannelRequest) (*models.Channel, bool, error)
	GetMembers(ctx context.Context, channelID uuid.UUID) ([]models.MemberSummary, error)
}

type ChannelHandler struct {
	svc    ChannelService
	logger *zap.Logger
}

func NewChannelHandler(svc ChannelService, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{svc: svc, logger: logger}
}

// channelListItem is one entry of GET /v1/channels. Read receipts are not
// tracked, so unread_count is always 0.
type channelListItem struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	IsDM        bool       `json:"is_dm"`
	UnreadCount int        `json:"unread_count"`
	LastMessage *time.Time `json:"last_message"`
}

// List handles GET /v1/channels?user_id=...
// With auth enabled the caller's own id is used when user_id is omitted.
func (h *ChannelHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		userID = id
	}
	if userID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	channels, err := h.svc.ListChannelsForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "list channels", err)
		return
	}

	out := make([]channelListItem, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelListItem{
			ID:          ch.ID,
			Name:        ch.Name,
			IsDM:        ch.IsDM,
			LastMessage: ch.LastMessageAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

type createChannelRequest struct {
	Name      string      `json:"name" binding:"required"`
	IsDM      bool        `json:"is_dm"`
	MemberIDs []uuid.UUID `json:"member_ids" binding:"required"`
	CreatedBy uuid.UUID   `json:"created_by"`
}

type createChannelResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	IsDM bool      `json:"is_dm"`
}

// Create handles POST /v1/channels. It answers 201 for a new channel and
// 200 when an existing DM is returned.
func (h *ChannelHandler) Create(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CreatedBy == uuid.Nil {
		req.CreatedBy = middleware.GetUserID(c)
	}

	ch, created, err := h.svc.CreateOrGetChannel(c.Request.Context(), chat.CreateChannelRequest{
		Name:      req.Name,
		IsDM:      req.IsDM,
		MemberIDs: req.MemberIDs,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		respondError(c, h.logger, "create channel", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, createChannelResponse{ID: ch.ID, Name: ch.Name, IsDM: ch.IsDM})
}

// Members handles GET /v1/channels/:id/members. An id that does not parse
// cannot name a channel, so it is a 404 like any other unknown id.
func (h *ChannelHandler) Members(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}

	members, err := h.svc.GetMembers(c.Request.Context(), channelID)
	if err != nil {
		respondError(c, h.logger, "list members", err)
		return
	}
	c.JSON(http.StatusOK, members)
}
