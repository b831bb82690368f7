package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/models"
)

// SendResult is what a successful Send produced. BroadcastErr records a
// failed live delivery; the message is stored regardless.
type SendResult struct {
	Message models.MessageSummary

	// Channel is set when the send resolved a DM from DirectTo.
	Channel        *models.Channel
	ChannelCreated bool

	Delivered    int
	BroadcastErr error
}

// Send validates, persists and then broadcasts one message.
//
// A failed append returns the error and nothing is broadcast. A failed
// broadcast is logged and reported in SendResult.BroadcastErr, and Send
// still returns a nil error: once stored, the message is final.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	var res SendResult
	if err := req.Validate(); err != nil {
		return res, err
	}

	channelID := req.ChannelID
	if channelID == uuid.Nil {
		ch, created, err := s.ResolveDM(ctx, req.UserID, req.DirectTo, req.ChannelName)
		if err != nil {
			return res, err
		}
		channelID = ch.ID
		res.Channel, res.ChannelCreated = ch, created
	}

	appendReq := req.appendRequest(channelID)
	if appendReq.Name == "" {
		appendReq.Name = s.authorName(ctx, req.UserID)
	}

	msg, err := s.Append(ctx, appendReq)
	if err != nil {
		return res, err
	}
	res.Message = msg.Summary()

	if s.broadcaster == nil {
		return res, nil
	}
	res.Delivered, res.BroadcastErr = s.broadcaster.Publish(ctx, channelID, res.Message)
	if res.BroadcastErr != nil {
		s.logger.Warn("broadcast incomplete",
			zap.String("channel_id", channelID.String()),
			zap.String("message_id", res.Message.ID),
			zap.Int("delivered", res.Delivered),
			zap.Error(res.BroadcastErr),
		)
	}
	return res, nil
}

// ResolveDM returns the DM between userID and directTo, creating it on
// first contact. directTo may or may not include userID itself. An empty
// name means DMName of the members.
func (s *Service) ResolveDM(ctx context.Context, userID uuid.UUID, directTo []uuid.UUID, name string) (*models.Channel, bool, error) {
	if userID == uuid.Nil {
		return nil, false, invalid("user_id", "is required")
	}
	members := uniqueIDs(append([]uuid.UUID{userID}, directTo...))
	if name == "" {
		name = DMName(members)
	}
	ch, created, err := s.CreateOrGetChannel(ctx, CreateChannelRequest{
		Name:      name,
		IsDM:      true,
		MemberIDs: members,
		CreatedBy: userID,
	})
	if err != nil {
		return nil, false, fmt.Errorf("resolve dm: %w", err)
	}
	return ch, created, nil
}

// authorName looks the sender up in the user directory. A failed or empty
// lookup is not fatal: the message is stored without a name and rendered
// as models.UnknownAuthor.
func (s *Service) authorName(ctx context.Context, userID uuid.UUID) string {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Warn("author lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		return ""
	}
	if u == nil {
		return ""
	}
	return u.Name
}
