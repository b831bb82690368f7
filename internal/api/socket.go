package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/chat"
	"github.com/lalith-99/agencychat/internal/middleware"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/observ"
	"github.com/lalith-99/agencychat/internal/realtime"
)

const (
	maxFrameSize = 64 << 10
	pongWait     = 60 * time.Second
	eventTimeout = 10 * time.Second
)

// SocketService is what the socket adapter needs from the chat core.
type SocketService interface {
	Send(ctx context.Context, req chat.SendRequest) (chat.SendResult, error)
	ResolveDM(ctx context.Context, userID uuid.UUID, directTo []uuid.UUID, name string) (*models.Channel, bool, error)
}

// SocketHandler upgrades GET /v1/ws and runs one event loop per client.
//
// Failed events are logged and dropped. With errorEvents set the client
// also gets an "error" event naming the event that failed.
type SocketHandler struct {
	hub         *realtime.Hub
	svc         SocketService
	logger      *zap.Logger
	errorEvents bool
	upgrader    websocket.Upgrader
}

func NewSocketHandler(hub *realtime.Hub, svc SocketService, logger *zap.Logger, errorEvents bool) *SocketHandler {
	return &SocketHandler{
		hub:         hub,
		svc:         svc,
		logger:      logger,
		errorEvents: errorEvents,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients are served from other origins; access is
			// controlled by the bearer token instead.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type roomPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

// sendPayload is the send_message event. channel_id may be empty on the
// first message of a DM, in which case member_ids names the other side.
type sendPayload struct {
	ChannelID       string      `json:"channel_id"`
	UserID          string      `json:"user_id"`
	Content         string      `json:"content"`
	ParentMessageID *string     `json:"parent_message_id"`
	Name            string      `json:"name"`
	MemberIDs       []uuid.UUID `json:"member_ids"`
	IsDM            bool        `json:"is_dm"`
	ChannelName     string      `json:"channel_name"`
}

type errorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

var (
	errMalformedFrame    = errors.New("malformed frame")
	errIncompletePayload = errors.New("incomplete payload")
)

// Serve handles GET /v1/ws.
func (h *SocketHandler) Serve(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := realtime.NewConnection(middleware.GetUserID(c), ws)
	h.hub.Connect(conn)
	conn.Start()

	defer func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := h.hub.Disconnect(ctx, conn.ID()); err != nil {
			h.logger.Warn("disconnect cleanup failed", zap.String("session_id", conn.ID()), zap.Error(err))
		}
	}()

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read failed", zap.String("session_id", conn.ID()), zap.Error(err))
			}
			return
		}
		// Any inbound frame proves the client is alive.
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		h.dispatch(c.Request.Context(), conn, frame)
	}
}

func (h *SocketHandler) dispatch(parent context.Context, conn *realtime.Connection, frame []byte) {
	var env realtime.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		h.fail(conn, "unknown", errMalformedFrame)
		return
	}

	ctx, cancel := context.WithTimeout(parent, eventTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case realtime.EventJoin:
		err = h.onRoom(ctx, conn, env.Data, h.hub.Join)
	case realtime.EventLeave:
		err = h.onRoom(ctx, conn, env.Data, h.hub.Leave)
	case realtime.EventSendMessage:
		err = h.onSend(ctx, conn, env.Data)
	default:
		h.fail(conn, "unknown", fmt.Errorf("%w: unknown event %q", errMalformedFrame, env.Event))
		return
	}

	if err != nil {
		h.fail(conn, env.Event, err)
		return
	}
	observ.SocketEvents.WithLabelValues(env.Event, "ok").Inc()
}

func (h *SocketHandler) onRoom(ctx context.Context, conn *realtime.Connection, data json.RawMessage,
	op func(context.Context, string, uuid.UUID) error) error {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ChannelID == uuid.Nil {
		return errIncompletePayload
	}
	return op(ctx, conn.ID(), p.ChannelID)
}

// onSend runs the send protocol for one send_message event. When the
// event opens a DM, the sender's session joins the new room before the
// message is published so the sender sees its own first message.
func (h *SocketHandler) onSend(ctx context.Context, conn *realtime.Connection, data json.RawMessage) error {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errIncompletePayload
	}

	userID := conn.UserID()
	if userID == uuid.Nil {
		id, err := uuid.Parse(p.UserID)
		if err != nil {
			return errIncompletePayload
		}
		userID = id
	}

	var channelID uuid.UUID
	if p.ChannelID != "" {
		id, err := uuid.Parse(p.ChannelID)
		if err != nil {
			return errIncompletePayload
		}
		channelID = id
	}

	if channelID == uuid.Nil {
		if len(p.MemberIDs) == 0 {
			return errIncompletePayload
		}
		ch, created, err := h.svc.ResolveDM(ctx, userID, p.MemberIDs, p.ChannelName)
		if err != nil {
			return err
		}
		if err := h.hub.Join(ctx, conn.ID(), ch.ID); err != nil {
			return err
		}
		if created {
			h.logger.Info("dm channel created",
				zap.String("channel_id", ch.ID.String()),
				zap.String("user_id", userID.String()),
			)
		}
		channelID = ch.ID
	}

	_, err := h.svc.Send(ctx, chat.SendRequest{
		ChannelID:       channelID,
		UserID:          userID,
		Content:         p.Content,
		ParentMessageID: p.ParentMessageID,
		Name:            p.Name,
	})
	return err
}

func (h *SocketHandler) fail(conn *realtime.Connection, event string, err error) {
	outcome := "failed"
	if rejected(err) {
		outcome = "rejected"
		h.logger.Debug("socket event dropped",
			zap.String("event", event), zap.String("session_id", conn.ID()), zap.Error(err))
	} else {
		h.logger.Warn("socket event failed",
			zap.String("event", event), zap.String("session_id", conn.ID()), zap.Error(err))
	}
	observ.SocketEvents.WithLabelValues(event, outcome).Inc()

	if !h.errorEvents {
		return
	}
	payload, encErr := realtime.Encode(realtime.EventError, errorPayload{Event: event, Error: socketErrorMessage(err)})
	if encErr != nil {
		return
	}
	_ = conn.Send(payload)
}

func rejected(err error) bool {
	return errors.Is(err, errMalformedFrame) ||
		errors.Is(err, errIncompletePayload) ||
		errors.Is(err, chat.ErrInvalidArgument)
}

// socketErrorMessage keeps store and internal details off the wire.
func socketErrorMessage(err error) string {
	switch {
	case rejected(err):
		return err.Error()
	case errors.Is(err, chat.ErrNotFound):
		return "channel not found"
	case errors.Is(err, realtime.ErrUnknownSession):
		return "session closed"
	case errors.Is(err, chat.ErrStoreUnavailable):
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}
