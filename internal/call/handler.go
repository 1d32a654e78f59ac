package call

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"favoro/internal/common/response"
	apperrors "favoro/pkg/errors"
)

type Handler struct {
	service        *Service
	validate       *validator.Validate
	acquireTimeout time.Duration
}

// NewHandler builds the call screen handler. acquireTimeout bounds each
// media acquisition made on behalf of a request; zero means no bound.
func NewHandler(service *Service, acquireTimeout time.Duration) *Handler {
	return &Handler{
		service:        service,
		validate:       validator.New(),
		acquireTimeout: acquireTimeout,
	}
}

// StartCall begins dialing a contact from the directory
func (h *Handler) StartCall(c *fiber.Ctx) error {
	var req StartCallRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validate.Struct(&req); err != nil {
		return response.ValidationError(c, err)
	}

	contactID, _ := uuid.Parse(req.ContactID)
	session, err := h.service.Start(contactID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return response.NotFound(c, "Contact not found")
		}
		return response.InternalError(c, err)
	}

	return response.Created(c, session.Snapshot())
}

func (h *Handler) GetCurrentCall(c *fiber.Ctx) error {
	session, ok := h.service.Current()
	if !ok {
		return response.Success(c, fiber.Map{"state": StateIdle})
	}
	return response.Success(c, session.Snapshot())
}

// AttachMedia acquires local media and moves the call to active
func (h *Handler) AttachMedia(c *fiber.Ctx) error {
	return h.withMedia(c, func(ctx context.Context, s *Session) error {
		return s.AttachMedia(ctx)
	})
}

func (h *Handler) SkipMedia(c *fiber.Ctx) error {
	return h.withSession(c, func(s *Session) error {
		s.SkipMedia()
		return response.Success(c, s.Snapshot())
	})
}

func (h *Handler) ToggleCamera(c *fiber.Ctx) error {
	return h.withMedia(c, func(ctx context.Context, s *Session) error {
		return s.ToggleCamera(ctx)
	})
}

func (h *Handler) ToggleMic(c *fiber.Ctx) error {
	return h.withMedia(c, func(ctx context.Context, s *Session) error {
		return s.ToggleMic(ctx)
	})
}

func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validate.Struct(&req); err != nil {
		return response.ValidationError(c, err)
	}

	return h.withSession(c, func(s *Session) error {
		msg, ok := s.SendMessage(req.Text)
		data := fiber.Map{
			"sent":    ok,
			"message": sentOrNil(msg, ok),
			"call":    s.Snapshot(),
		}
		if !ok {
			return response.Degraded(c, data, rejection(s, req.Text))
		}
		return response.Success(c, data)
	})
}

func (h *Handler) SetChatVisible(c *fiber.Ctx) error {
	var req ChatVisibilityRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	return h.withSession(c, func(s *Session) error {
		s.SetChatVisible(req.Visible)
		return response.Success(c, s.Snapshot())
	})
}

func (h *Handler) EndCall(c *fiber.Ctx) error {
	return h.withSession(c, func(s *Session) error {
		s.EndCall()
		return response.Success(c, s.Snapshot())
	})
}

func (h *Handler) withSession(c *fiber.Ctx, fn func(*Session) error) error {
	session, ok := h.service.Current()
	if !ok {
		return response.Conflict(c, "No call in progress")
	}
	return fn(session)
}

// withMedia runs a media operation under the configured timeout. Acquisition
// failures are recovered by the session, so they are reported as notices.
func (h *Handler) withMedia(c *fiber.Ctx, fn func(context.Context, *Session) error) error {
	return h.withSession(c, func(s *Session) error {
		ctx := c.UserContext()
		if h.acquireTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.acquireTimeout)
			defer cancel()
		}

		if err := fn(ctx, s); err != nil {
			return response.Degraded(c, s.Snapshot(), err)
		}
		return response.Success(c, s.Snapshot())
	})
}

// rejection explains why SendMessage refused text, checking in the same
// order the session does.
func rejection(s *Session, text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.New(apperrors.CodeRejectedInput, "message text is blank")
	}
	return apperrors.NewWithDetails(apperrors.CodeSessionEnded, "call has ended", s.ID().String())
}

func sentOrNil(msg Message, ok bool) *Message {
	if !ok {
		return nil
	}
	return &msg
}
