package call

import (
	"time"

	"github.com/google/uuid"

	"favoro/internal/contact"
	"favoro/internal/media"
)

type State string

const (
	// StateIdle is reported when no session exists yet.
	StateIdle    State = "idle"
	StateDialing State = "dialing"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

type Sender string

const (
	SenderSelf Sender = "self"
	SenderPeer Sender = "peer"
)

type Message struct {
	ID        uuid.UUID `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// Seq is the insertion position; it orders messages with equal timestamps.
	Seq uint64 `json:"seq"`
}

// Track is the local state of one media kind. On is the user's intent;
// Handle is the stream actually held. While Pending, On may be true with no
// Handle attached yet.
type Track struct {
	On        bool          `json:"on"`
	Pending   bool          `json:"pending"`
	Handle    *media.Handle `json:"handle,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

func (t Track) Attached() bool {
	return t.Handle != nil
}

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	ID          uuid.UUID    `json:"id"`
	State       State        `json:"state"`
	Contact     contact.View `json:"contact"`
	Camera      Track        `json:"camera"`
	Mic         Track        `json:"mic"`
	CameraOn    bool         `json:"camera_on"`
	MicOn       bool         `json:"mic_on"`
	ChatVisible bool         `json:"chat_visible"`
	Messages    []Message    `json:"messages"`
	StartedAt   time.Time    `json:"started_at"`
	ActiveAt    *time.Time   `json:"active_at,omitempty"`
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
	Duration    int          `json:"duration"`
}

// Request DTOs

type StartCallRequest struct {
	ContactID string `json:"contact_id" validate:"required,uuid"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"max=4000"`
}

type ChatVisibilityRequest struct {
	Visible bool `json:"visible"`
}
