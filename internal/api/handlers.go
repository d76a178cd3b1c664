package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/realtime-service/internal/apperrors"
	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/models"
)

// getHistory lists a pair's messages ascending by time, creating the
// conversation on first fetch the way the send path would.
func (s *Server) getHistory(c *fiber.Ctx) error {
	callerID := c.Locals(auth.UserIDKey).(string)
	peerID := c.Params("userId")
	if peerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "userId is required"})
	}

	msgs, err := s.service.History(c.Context(), callerID, peerID)
	if err != nil {
		s.log.Errorw("history fetch", "caller", callerID, "peer", peerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load messages"})
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return c.JSON(msgs)
}

// listUsers returns every other user with presence and the last-message
// summary from the conversation cache.
func (s *Server) listUsers(c *fiber.Ctx) error {
	callerID := c.Locals(auth.UserIDKey).(string)

	users, err := s.users.ListOthers(c.Context(), callerID)
	if err != nil {
		s.log.Errorw("user listing", "caller", callerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load users"})
	}

	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		row := models.UserSummary{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
			IsOnline: u.IsOnline,
			LastSeen: u.LastSeen,
		}
		conv, err := s.conversations.FindByParticipants(c.Context(), callerID, u.ID)
		switch {
		case err == nil:
			row.LastMessage = conv.LastMessage
			row.LastMessageTime = conv.LastMessageAt
		case errors.Is(err, apperrors.ErrNotFound):
			// no conversation yet
		default:
			s.log.Warnw("last-message lookup", "caller", callerID, "peer", u.ID, "error", err)
		}
		out = append(out, row)
	}
	return c.JSON(out)
}
