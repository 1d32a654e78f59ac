package media

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"favoro/pkg/logger"
)

// Loopback is a synthetic capture device. It hands out handles after a fixed
// latency and can be told to refuse a kind, which is enough to drive the call
// screen without real hardware.
type Loopback struct {
	mu      sync.Mutex
	latency time.Duration
	denied  map[Kind]error
	live    map[uuid.UUID]Handle
	log     *logger.Logger
}

func NewLoopback(latency time.Duration, log *logger.Logger) *Loopback {
	if log == nil {
		log = logger.Nop()
	}
	return &Loopback{
		latency: latency,
		denied:  make(map[Kind]error),
		live:    make(map[uuid.UUID]Handle),
		log:     log.With(zap.String("module", "media")),
	}
}

// Deny makes every later Acquire of kind fail with err. A nil err lifts the
// denial.
func (l *Loopback) Deny(kind Kind, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		delete(l.denied, kind)
		return
	}
	l.denied[kind] = err
}

func (l *Loopback) Acquire(ctx context.Context, kind Kind) (*Handle, error) {
	if l.latency > 0 {
		timer := time.NewTimer(l.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.denied[kind]; err != nil {
		l.log.Debug("acquire refused", zap.String("kind", string(kind)), zap.Error(err))
		return nil, err
	}

	h := Handle{ID: uuid.New(), Kind: kind}
	l.live[h.ID] = h
	l.log.Debug("stream acquired", zap.String("kind", string(kind)), zap.Stringer("handle", h.ID))
	return &h, nil
}

func (l *Loopback) Release(h *Handle) {
	if h == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.live[h.ID]; ok {
		delete(l.live, h.ID)
		l.log.Debug("stream released", zap.String("kind", string(h.Kind)), zap.Stringer("handle", h.ID))
	}
}

// Live returns the number of handles acquired and not yet released.
func (l *Loopback) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}
