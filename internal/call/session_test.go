package call

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"favoro/internal/contact"
	"favoro/internal/media"
	apperrors "favoro/pkg/errors"
)

// gatedCapture blocks every Acquire until the test lets it through.
type gatedCapture struct {
	*media.Loopback
	started chan media.Kind
	proceed chan struct{}
}

func newGatedCapture() *gatedCapture {
	return &gatedCapture{
		Loopback: media.NewLoopback(0, nil),
		started:  make(chan media.Kind, 4),
		proceed:  make(chan struct{}),
	}
}

func (g *gatedCapture) Acquire(ctx context.Context, kind media.Kind) (*media.Handle, error) {
	g.started <- kind
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.proceed:
	}
	return g.Loopback.Acquire(ctx, kind)
}

func waitStarted(t *testing.T, g *gatedCapture) media.Kind {
	t.Helper()
	select {
	case k := <-g.started:
		return k
	case <-time.After(time.Second):
		t.Fatal("acquisition never started")
		return ""
	}
}

func newContact(name string) contact.Contact {
	d := contact.NewDirectory(nil)
	return d.Add(contact.Draft{Name: name, Email: "ann@x.com", Status: contact.StatusOffline})
}

func TestStartCallDialsWithMediaIntentOn(t *testing.T) {
	ann := newContact("Ann")
	s := StartCall(ann, media.NewLoopback(0, nil), nil)

	snap := s.Snapshot()
	assert.Equal(t, StateDialing, snap.State)
	assert.Equal(t, "Ann", snap.Contact.Name)
	assert.Equal(t, ann.ID, snap.Contact.ID)
	assert.Empty(t, snap.Messages)
	assert.True(t, snap.CameraOn)
	assert.True(t, snap.MicOn)
	assert.False(t, snap.Camera.Attached())
	assert.False(t, snap.Mic.Attached())
}

func TestToggleMicTwiceWhileDialingRestoresIntent(t *testing.T) {
	capture := media.NewLoopback(0, nil)
	s := StartCall(newContact("Ann"), capture, nil)
	original := s.Snapshot().MicOn

	require.NoError(t, s.ToggleMic(context.Background()))
	assert.Equal(t, !original, s.Snapshot().MicOn)
	require.NoError(t, s.ToggleMic(context.Background()))
	assert.Equal(t, original, s.Snapshot().MicOn)
	assert.Zero(t, capture.Live())
}

func TestAttachMediaActivatesWithHandles(t *testing.T) {
	capture := media.NewLoopback(0, nil)
	s := StartCall(newContact("Ann"), capture, nil)

	require.NoError(t, s.AttachMedia(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.True(t, snap.Camera.Attached())
	assert.True(t, snap.Mic.Attached())
	assert.NotNil(t, snap.ActiveAt)
	assert.Equal(t, 2, capture.Live())

	// a second attach is a no-op
	require.NoError(t, s.AttachMedia(context.Background()))
	assert.Equal(t, 2, capture.Live())
}

func TestAttachMediaDegradesOnDeniedCamera(t *testing.T) {
	capture := media.NewLoopback(0, nil)
	capture.Deny(media.KindVideo, media.ErrPermissionDenied)
	s := StartCall(newContact("Ann"), capture, nil)

	err := s.AttachMedia(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeMediaAcquisition))
	assert.ErrorIs(t, err, media.ErrPermissionDenied)

	snap := s.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.False(t, snap.CameraOn)
	assert.Equal(t, media.ErrPermissionDenied.Error(), snap.Camera.LastError)
	assert.True(t, snap.Mic.Attached())
}

func TestSkipMediaActivatesWithMediaOff(t *testing.T) {
	capture := media.NewLoopback(0, nil)
	s := StartCall(newContact("Ann"), capture, nil)

	s.SkipMedia()

	snap := s.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.False(t, snap.CameraOn)
	assert.False(t, snap.MicOn)
	assert.Zero(t, capture.Live())
}

func TestToggleCameraWhileActive(t *testing.T) {
	capture := media.NewLoopback(0, nil)
	s := StartCall(newContact("Ann"), capture, nil)
	require.NoError(t, s.AttachMedia(context.Background()))

	require.NoError(t, s.ToggleCamera(context.Background()))
	snap := s.Snapshot()
	assert.False(t, snap.CameraOn)
	assert.False(t, snap.Camera.Attached())
	assert.Equal(t, 1, capture.Live())

	require.NoError(t, s.ToggleCamera(context.Background()))
	snap = s.Snapshot()
	assert.True(t, snap.CameraOn)
	assert.True(t, snap.Camera.Attached())
	assert.Equal(t, 2, capture.Live())
}

func TestToggleOnFailureRevertsToOff(t *testing.T) {
	capture := media.NewLoopback(0, nil)
	s := StartCall(newContact("Ann"), capture, nil)
	s.SkipMedia()
	capture.Deny(media.KindAudio, media.ErrDeviceBusy)

	err := s.ToggleMic(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeMediaAcquisition))

	snap := s.Snapshot()
	assert.False(t, snap.MicOn)
	assert.False(t, snap.Mic.Pending)
	assert.Equal(t, StateActive, snap.State)

	capture.Deny(media.KindAudio, nil)
	require.NoError(t, s.ToggleMic(context.Background()))
	snap = s.Snapshot()
	assert.True(t, snap.Mic.Attached())
	assert.Empty(t, snap.Mic.LastError)
}

func TestPendingAcquisitionIsObservable(t *testing.T) {
	capture := newGatedCapture()
	s := StartCall(newContact("Ann"), capture, nil)
	s.SkipMedia()

	done := make(chan error, 1)
	go func() { done <- s.ToggleCamera(context.Background()) }()
	require.Equal(t, media.KindVideo, waitStarted(t, capture))

	snap := s.Snapshot()
	assert.True(t, snap.CameraOn)
	assert.True(t, snap.Camera.Pending)
	assert.False(t, snap.Camera.Attached())

	close(capture.proceed)
	require.NoError(t, <-done)

	snap = s.Snapshot()
	assert.False(t, snap.Camera.Pending)
	assert.True(t, snap.Camera.Attached())
}

func TestToggleOffCancelsPendingAcquisition(t *testing.T) {
	capture := newGatedCapture()
	s := StartCall(newContact("Ann"), capture, nil)
	s.SkipMedia()

	done := make(chan error, 1)
	go func() { done <- s.ToggleCamera(context.Background()) }()
	waitStarted(t, capture)

	require.NoError(t, s.ToggleCamera(context.Background()))
	require.NoError(t, <-done)

	snap := s.Snapshot()
	assert.False(t, snap.CameraOn)
	assert.False(t, snap.Camera.Pending)
	assert.Zero(t, capture.Live())
}

func TestEndCallCancelsPendingAttach(t *testing.T) {
	capture := newGatedCapture()
	s := StartCall(newContact("Ann"), capture, nil)

	done := make(chan error, 1)
	go func() { done <- s.AttachMedia(context.Background()) }()
	waitStarted(t, capture)
	waitStarted(t, capture)

	s.EndCall()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("attach did not return after end")
	}

	snap := s.Snapshot()
	assert.Equal(t, StateEnded, snap.State)
	assert.False(t, snap.Camera.Attached())
	assert.False(t, snap.Mic.Attached())
	assert.Zero(t, capture.Live())
}

func TestEndCallReleasesAndClears(t *testing.T) {
	capture := media.NewLoopback(0, nil)
	s := StartCall(newContact("Ann"), capture, nil)
	require.NoError(t, s.AttachMedia(context.Background()))
	s.SendMessage("hello")

	var calls int
	s.Subscribe(func() { calls++ })

	s.EndCall()
	snap := s.Snapshot()
	assert.Equal(t, StateEnded, snap.State)
	assert.Nil(t, snap.Camera.Handle)
	assert.Nil(t, snap.Mic.Handle)
	assert.Empty(t, snap.Messages)
	assert.NotNil(t, snap.EndedAt)
	assert.Zero(t, capture.Live())
	assert.Equal(t, 1, calls)

	assert.NotPanics(t, s.EndCall)
	assert.Equal(t, 1, calls)

	// ended sessions ignore further commands
	require.NoError(t, s.ToggleCamera(context.Background()))
	require.NoError(t, s.AttachMedia(context.Background()))
	assert.Zero(t, capture.Live())
	assert.Equal(t, StateEnded, s.State())
}

func TestSendMessageRejectsBlankText(t *testing.T) {
	s := StartCall(newContact("Ann"), media.NewLoopback(0, nil), nil)
	var calls int
	s.Subscribe(func() { calls++ })

	for _, text := range []string{"", "   ", "\t\n"} {
		_, ok := s.SendMessage(text)
		assert.False(t, ok, "%q should be rejected", text)
	}
	assert.Empty(t, s.Messages())
	assert.Zero(t, calls)

	msg, ok := s.SendMessage("hi")
	require.True(t, ok)
	assert.Equal(t, SenderSelf, msg.Sender)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, []Message{msg}, s.Messages())
	assert.Equal(t, 1, calls)
}

func TestSendMessageOnEndedSessionIsRejected(t *testing.T) {
	s := StartCall(newContact("Ann"), media.NewLoopback(0, nil), nil)
	s.EndCall()

	_, ok := s.SendMessage("too late")
	assert.False(t, ok)
	_, ok = s.ReceiveMessage("too late")
	assert.False(t, ok)
	assert.Empty(t, s.Messages())
}

func TestMessagesKeepSendOrderWithMonotonicTimestamps(t *testing.T) {
	s := StartCall(newContact("Ann"), media.NewLoopback(0, nil), nil)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Minute), base}
	var i int
	s.now = func() time.Time {
		ts := ticks[i]
		i++
		return ts
	}

	m1, _ := s.SendMessage("one")
	m2, _ := s.ReceiveMessage("two")
	m3, _ := s.SendMessage("three")

	got := s.Messages()
	require.Equal(t, []Message{m1, m2, m3}, got)
	assert.Equal(t, SenderPeer, m2.Sender)
	for j := 1; j < len(got); j++ {
		assert.False(t, got[j].Timestamp.Before(got[j-1].Timestamp))
		assert.Greater(t, got[j].Seq, got[j-1].Seq)
	}
	assert.NotEqual(t, m1.ID, m3.ID)
}

func TestSetChatVisible(t *testing.T) {
	s := StartCall(newContact("Ann"), media.NewLoopback(0, nil), nil)
	var calls int
	s.Subscribe(func() { calls++ })

	s.SetChatVisible(true)
	s.SetChatVisible(true)
	assert.True(t, s.Snapshot().ChatVisible)
	assert.Equal(t, 1, calls)

	s.SetChatVisible(false)
	assert.False(t, s.Snapshot().ChatVisible)
}

func TestDurationFreezesAtEnd(t *testing.T) {
	s := StartCall(newContact("Ann"), media.NewLoopback(0, nil), nil)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	assert.Zero(t, s.Duration())
	s.SkipMedia()
	clock = clock.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, s.Duration())

	s.EndCall()
	clock = clock.Add(time.Hour)
	assert.Equal(t, 90*time.Second, s.Duration())
	assert.Equal(t, 90, s.Snapshot().Duration)
}

func TestRemovingContactDoesNotAffectSession(t *testing.T) {
	d := contact.NewDirectory(nil)
	ann := d.Add(contact.Draft{Name: "Ann", Email: "ann@x.com"})
	s := StartCall(ann, media.NewLoopback(0, nil), nil)

	require.True(t, d.Remove(ann.ID))
	assert.Equal(t, "Ann", s.Contact().Name)
	assert.Equal(t, StateDialing, s.State())
}

func TestSessionContactIsNotAliased(t *testing.T) {
	avatar := "a.png"
	ann := contact.Contact{ID: uuid.New(), Name: "Ann", Avatar: &avatar}
	s := StartCall(ann, media.NewLoopback(0, nil), nil)

	*ann.Avatar = "caller.png"
	snap := s.Snapshot()
	*snap.Contact.Avatar = "mutated.png"
	c := s.Contact()
	*c.Avatar = "contact.png"

	require.NotNil(t, s.Snapshot().Contact.Avatar)
	assert.Equal(t, "a.png", *s.Snapshot().Contact.Avatar)
	assert.Equal(t, "a.png", *s.Contact().Avatar)
}

func TestCallScenario(t *testing.T) {
	d := contact.NewDirectory(nil)
	d.Add(contact.Draft{Name: "Ann", Email: "ann@x.com", Status: contact.StatusOffline})

	list := d.List()
	require.Len(t, list, 1)

	s := StartCall(list[0], media.NewLoopback(0, nil), nil)
	snap := s.Snapshot()
	assert.Equal(t, StateDialing, snap.State)
	assert.Equal(t, "Ann", snap.Contact.Name)
	assert.Empty(t, snap.Messages)

	micOn := snap.MicOn
	require.NoError(t, s.ToggleMic(context.Background()))
	require.NoError(t, s.ToggleMic(context.Background()))
	assert.Equal(t, micOn, s.Snapshot().MicOn)
}
