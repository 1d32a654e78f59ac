package call

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"favoro/internal/contact"
	"favoro/internal/media"
	"favoro/internal/notify"
	apperrors "favoro/pkg/errors"
	"favoro/pkg/logger"
)

// Session is one call, from dialing to ended. Sessions are never reused:
// once ended, a new call needs a new Session.
//
// Media acquisition is the only operation that blocks. It runs without the
// session lock held, so Snapshot may observe a track whose intent is on but
// whose handle is still pending.
type Session struct {
	mu          sync.Mutex
	id          uuid.UUID
	state       State
	contact     contact.Contact
	camera      track
	mic         track
	attaching   bool
	chatVisible bool
	messages    []Message
	seq         uint64
	startedAt   time.Time
	activeAt    time.Time
	endedAt     time.Time

	capture   media.Capture
	listeners *notify.Registry
	log       *logger.Logger
	now       func() time.Time
}

type track struct {
	kind    media.Kind
	intent  bool
	pending bool
	handle  *media.Handle
	lastErr string
	// gen is bumped whenever an in-flight acquisition becomes stale.
	gen    uint64
	cancel context.CancelFunc
}

// StartCall opens a session in the dialing state for c. Camera and mic intents
// default to on; nothing is acquired until AttachMedia.
func StartCall(c contact.Contact, capture media.Capture, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	s := &Session{
		id:        uuid.New(),
		state:     StateDialing,
		contact:   c.Clone(),
		camera:    track{kind: media.KindVideo, intent: true},
		mic:       track{kind: media.KindAudio, intent: true},
		capture:   capture,
		listeners: notify.NewRegistry(),
		now:       time.Now,
	}
	s.startedAt = s.now()
	s.log = log.With(zap.String("module", "call"), zap.Stringer("call_id", s.id))
	s.log.Info("call started", zap.Stringer("contact_id", c.ID))
	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Contact returns the contact this call was started against. Later changes
// to the directory do not affect it.
func (s *Session) Contact() contact.Contact {
	return s.contact.Clone()
}

func (s *Session) Subscribe(fn func()) func() {
	return s.listeners.Subscribe(fn)
}

// AttachMedia acquires every track whose intent is on and moves the session
// from dialing to active. A track that cannot be acquired is switched off and
// its failure returned; the session still becomes active.
func (s *Session) AttachMedia(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDialing || s.attaching {
		s.mu.Unlock()
		return nil
	}
	s.attaching = true

	var jobs []acquisition
	for _, t := range []*track{&s.camera, &s.mic} {
		if t.intent {
			jobs = append(jobs, s.beginAcquire(ctx, t))
		}
	}
	s.mu.Unlock()
	s.notify()

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job acquisition) {
			defer wg.Done()
			errs[i] = s.runAcquire(job)
		}(i, job)
	}
	wg.Wait()

	s.mu.Lock()
	s.attaching = false
	activated := s.state == StateDialing
	if activated {
		s.state = StateActive
		s.activeAt = s.now()
	}
	s.mu.Unlock()

	if activated {
		s.log.Info("call active")
		s.notify()
	}
	return multierr.Combine(errs...)
}

// SkipMedia moves a dialing session to active with camera and mic off.
func (s *Session) SkipMedia() {
	s.mu.Lock()
	if s.state != StateDialing || s.attaching {
		s.mu.Unlock()
		return
	}
	s.camera.intent = false
	s.mic.intent = false
	s.state = StateActive
	s.activeAt = s.now()
	s.mu.Unlock()

	s.log.Info("call active without media")
	s.notify()
}

func (s *Session) ToggleCamera(ctx context.Context) error {
	return s.toggle(ctx, &s.camera)
}

func (s *Session) ToggleMic(ctx context.Context) error {
	return s.toggle(ctx, &s.mic)
}

func (s *Session) toggle(ctx context.Context, t *track) error {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return nil
	}

	if t.intent {
		h := t.stop()
		s.mu.Unlock()
		s.release(h)
		s.notify()
		return nil
	}

	t.intent = true
	t.lastErr = ""
	if s.state == StateDialing && !s.attaching {
		s.mu.Unlock()
		s.notify()
		return nil
	}
	job := s.beginAcquire(ctx, t)
	s.mu.Unlock()
	s.notify()

	return s.runAcquire(job)
}

type acquisition struct {
	t   *track
	gen uint64
	ctx context.Context
}

// beginAcquire marks t pending. Callers hold s.mu.
func (s *Session) beginAcquire(ctx context.Context, t *track) acquisition {
	t.gen++
	t.pending = true
	actx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	return acquisition{t: t, gen: t.gen, ctx: actx}
}

func (s *Session) runAcquire(job acquisition) error {
	h, err := s.capture.Acquire(job.ctx, job.t.kind)
	return s.completeAcquire(job, h, err)
}

func (s *Session) completeAcquire(job acquisition, h *media.Handle, err error) error {
	t := job.t

	s.mu.Lock()
	if t.gen != job.gen || s.state == StateEnded {
		// turned off, superseded or ended while acquiring
		s.mu.Unlock()
		s.release(h)
		return nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.pending = false

	if err != nil {
		t.intent = false
		t.lastErr = err.Error()
		s.mu.Unlock()
		s.release(h)

		s.log.Warn("media acquisition failed", zap.String("kind", string(t.kind)), zap.Error(err))
		s.notify()
		return apperrors.Wrap(apperrors.CodeMediaAcquisition, string(t.kind)+" capture unavailable", err)
	}

	t.handle = h
	t.lastErr = ""
	s.mu.Unlock()
	s.notify()
	return nil
}

// stop clears intent, cancels any pending acquisition and detaches the
// handle, which the caller must release. Callers hold s.mu.
func (t *track) stop() *media.Handle {
	t.intent = false
	t.pending = false
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	h := t.handle
	t.handle = nil
	return h
}

// EndCall terminates the session: pending acquisitions are cancelled, held
// streams released and the chat thread discarded. Ending twice is a no-op.
func (s *Session) EndCall() {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = StateEnded
	s.endedAt = s.now()
	handles := []*media.Handle{s.camera.stop(), s.mic.stop()}
	s.messages = nil
	s.chatVisible = false
	s.mu.Unlock()

	for _, h := range handles {
		s.release(h)
	}
	s.log.Info("call ended", zap.Duration("duration", s.Duration()))
	s.notify()
}

// SendMessage appends text from the local user. Blank text and ended
// sessions are rejected without touching the thread.
func (s *Session) SendMessage(text string) (Message, bool) {
	return s.appendMessage(SenderSelf, text)
}

// ReceiveMessage appends text from the peer under the same rules as
// SendMessage.
func (s *Session) ReceiveMessage(text string) (Message, bool) {
	return s.appendMessage(SenderPeer, text)
}

func (s *Session) appendMessage(sender Sender, text string) (Message, bool) {
	if strings.TrimSpace(text) == "" {
		return Message{}, false
	}

	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return Message{}, false
	}

	ts := s.now()
	if n := len(s.messages); n > 0 && ts.Before(s.messages[n-1].Timestamp) {
		ts = s.messages[n-1].Timestamp
	}
	s.seq++
	msg := Message{
		ID:        uuid.New(),
		Sender:    sender,
		Text:      text,
		Timestamp: ts,
		Seq:       s.seq,
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify()
	return msg, true
}

// Messages returns the chat thread in send order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) SetChatVisible(visible bool) {
	s.mu.Lock()
	if s.chatVisible == visible {
		s.mu.Unlock()
		return
	}
	s.chatVisible = visible
	s.mu.Unlock()
	s.notify()
}

// Duration is the time spent active, frozen once the call ends.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationLocked()
}

func (s *Session) durationLocked() time.Duration {
	if s.activeAt.IsZero() {
		return 0
	}
	end := s.endedAt
	if end.IsZero() {
		end = s.now()
	}
	return end.Sub(s.activeAt)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		State:       s.state,
		Contact:     contact.NewView(s.contact.Clone()),
		Camera:      s.camera.view(),
		Mic:         s.mic.view(),
		CameraOn:    s.camera.intent,
		MicOn:       s.mic.intent,
		ChatVisible: s.chatVisible,
		Messages:    make([]Message, len(s.messages)),
		StartedAt:   s.startedAt,
		Duration:    int(s.durationLocked().Seconds()),
	}
	copy(snap.Messages, s.messages)
	if !s.activeAt.IsZero() {
		at := s.activeAt
		snap.ActiveAt = &at
	}
	if !s.endedAt.IsZero() {
		at := s.endedAt
		snap.EndedAt = &at
	}
	return snap
}

func (t *track) view() Track {
	v := Track{On: t.intent, Pending: t.pending, LastError: t.lastErr}
	if t.handle != nil {
		h := *t.handle
		v.Handle = &h
	}
	return v
}

func (s *Session) release(h *media.Handle) {
	if h != nil {
		s.capture.Release(h)
	}
}

func (s *Session) notify() {
	if err := s.listeners.Notify(); err != nil {
		s.log.Warn("call listener failed", zap.Error(err))
	}
}
