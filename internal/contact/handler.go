package contact

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"favoro/internal/common/response"
)

type Handler struct {
	directory *Directory
	validate  *validator.Validate
}

func NewHandler(directory *Directory) *Handler {
	return &Handler{
		directory: directory,
		validate:  validator.New(),
	}
}

func (h *Handler) GetContacts(c *fiber.Ctx) error {
	contacts := h.directory.List()

	return response.Success(c, fiber.Map{
		"contacts": NewViews(contacts),
		"count":    len(contacts),
	})
}

func (h *Handler) SearchContacts(c *fiber.Ctx) error {
	query := c.Query("q")
	contacts := h.directory.Search(query)

	return response.Success(c, fiber.Map{
		"contacts": NewViews(contacts),
		"count":    len(contacts),
		"query":    query,
	})
}

func (h *Handler) AddContact(c *fiber.Ctx) error {
	var dto CreateContactDTO
	if err := c.BodyParser(&dto); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validate.Struct(&dto); err != nil {
		return response.ValidationError(c, err)
	}

	added := h.directory.Add(dto.Draft())
	return response.Created(c, NewView(added))
}

func (h *Handler) UpdateContact(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid contact ID")
	}

	var dto UpdateContactDTO
	if err := c.BodyParser(&dto); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validate.Struct(&dto); err != nil {
		return response.ValidationError(c, err)
	}

	updated, ok := h.directory.Update(id, dto.Patch())
	if !ok {
		// a missing contact is not an error for the directory
		return response.Success(c, fiber.Map{"updated": false})
	}

	return response.Success(c, fiber.Map{
		"updated": true,
		"contact": NewView(updated),
	})
}

func (h *Handler) RemoveContact(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid contact ID")
	}

	return response.Success(c, fiber.Map{
		"removed": h.directory.Remove(id),
	})
}
