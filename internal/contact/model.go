package contact

import (
	"github.com/google/uuid"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusAway    Status = "away"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway:
		return true
	}
	return false
}

type Contact struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Status Status    `json:"status"`
	Avatar *string   `json:"avatar,omitempty"`
}

// Draft is a contact before the directory has minted its id.
type Draft struct {
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Status Status  `json:"status"`
	Avatar *string `json:"avatar,omitempty"`
}

// Patch is a shallow merge: nil fields are left as they are. A non-nil
// Avatar pointing at nil clears the avatar.
type Patch struct {
	Name   *string
	Email  *string
	Status *Status
	Avatar **string
}

// Clone returns a copy that shares no memory with c.
func (c Contact) Clone() Contact {
	if c.Avatar != nil {
		avatar := *c.Avatar
		c.Avatar = &avatar
	}
	return c
}

func (c Contact) merge(p Patch) Contact {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Avatar != nil {
		c.Avatar = *p.Avatar
	}
	return c.Clone()
}

// Request DTOs

type CreateContactDTO struct {
	Name   string  `json:"name" validate:"required,max=100"`
	Email  string  `json:"email" validate:"required,email"`
	Status string  `json:"status" validate:"omitempty,oneof=online offline away"`
	Avatar *string `json:"avatar" validate:"omitempty,url"`
}

type UpdateContactDTO struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Status      *string `json:"status" validate:"omitempty,oneof=online offline away"`
	Avatar      *string `json:"avatar" validate:"omitempty,url"`
	ClearAvatar bool    `json:"clear_avatar"`
}

func (dto *CreateContactDTO) Draft() Draft {
	status := Status(dto.Status)
	if status == "" {
		status = StatusOffline
	}
	return Draft{
		Name:   dto.Name,
		Email:  dto.Email,
		Status: status,
		Avatar: dto.Avatar,
	}
}

func (dto *UpdateContactDTO) Patch() Patch {
	p := Patch{Name: dto.Name, Email: dto.Email}
	if dto.Status != nil {
		status := Status(*dto.Status)
		p.Status = &status
	}
	switch {
	case dto.ClearAvatar:
		var none *string
		p.Avatar = &none
	case dto.Avatar != nil:
		p.Avatar = &dto.Avatar
	}
	return p
}

// View is the card the presentation layer renders for a contact.
type View struct {
	Contact
	Initials string `json:"initials"`
}

func NewView(c Contact) View {
	return View{Contact: c, Initials: Initials(c.Name)}
}

func NewViews(contacts []Contact) []View {
	views := make([]View, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, NewView(c))
	}
	return views
}
