package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/chat"
)

// respondError maps service errors onto status codes:
//
//	invalid argument  -> 400 with the validation message
//	not found         -> 404
//	store unavailable -> 503
//	anything else     -> 500 with a generic message
//
// Only the last two are logged; the first two are the caller's problem.
func respondError(c *gin.Context, logger *zap.Logger, action string, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
	case errors.Is(err, chat.ErrStoreUnavailable):
		logger.Error("store unavailable", zap.String("action", action), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		logger.Error("failed to "+action, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}
