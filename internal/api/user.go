package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/repository"
)

// UserHandler exposes the small slice of the user directory the chat needs:
// enough to register people and read them back.
type UserHandler struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, logger: logger}
}

type createUserRequest struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name" binding:"required"`
	Email      string    `json:"email"`
	UserType   string    `json:"user_type"`
	Department string    `json:"department"`
}

// Create handles POST /v1/users. The id may be supplied so directory
// entries can mirror an upstream system; otherwise one is generated.
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name: is required"})
		return
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.UserType == "" {
		req.UserType = "employee"
	}

	user, err := h.repo.Create(c.Request.Context(), models.User{
		ID:         req.ID,
		Name:       strings.TrimSpace(req.Name),
		Email:      req.Email,
		UserType:   req.UserType,
		Department: req.Department,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		respondError(c, h.logger, "create user", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Get handles GET /v1/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "get user", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}
