// Package media describes the platform capture capability a call session
// depends on: acquiring a camera or microphone stream and releasing it.
package media

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrDeviceBusy        = errors.New("device busy")
)

// Handle is an opaque reference to an acquired stream.
type Handle struct {
	ID   uuid.UUID `json:"id"`
	Kind Kind      `json:"kind"`
}

// Capture acquires and releases media streams. Acquire may block and must
// return promptly once ctx is done. Release is synchronous and idempotent.
type Capture interface {
	Acquire(ctx context.Context, kind Kind) (*Handle, error)
	Release(h *Handle)
}
