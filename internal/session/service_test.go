package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/calendar"
	"github.com/fyrsmithlabs/voxd/internal/capture"
	"github.com/fyrsmithlabs/voxd/internal/extraction"
	"github.com/fyrsmithlabs/voxd/internal/notify"
)

var t0 = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	acts     map[string][]act.Act
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*Session),
		acts:     make(map[string][]act.Act),
	}
}

func (m *memStore) CreateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.OwnerID == s.OwnerID && existing.Active {
			return ErrSessionConflict
		}
	}
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *memStore) UpdateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *memStore) ListSessions(ctx context.Context, ownerID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.OwnerID == ownerID && !s.Archived {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memStore) ArchiveSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Archived = true
	return nil
}

func (m *memStore) SaveExtraction(ctx context.Context, s *Session, acts []act.Act) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.sessions[s.ID] = &clone
	m.acts[s.ID] = acts
	return nil
}

// fakeCaptures records call order so tests can assert persistence
// happens before extraction.
type fakeCaptures struct {
	mu         sync.Mutex
	events     *[]string
	persistErr error
	uploadErr  error
}

func (f *fakeCaptures) PersistLocally(ctx context.Context, media capture.Media) (*capture.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistErr != nil {
		return nil, f.persistErr
	}
	*f.events = append(*f.events, "persist")
	return &capture.Record{ID: "media-1", SessionID: media.SessionID, State: capture.StatePendingLocal}, nil
}

func (f *fakeCaptures) AttemptUpload(ctx context.Context, mediaID string) (*capture.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	*f.events = append(*f.events, "upload")
	return &capture.Record{ID: mediaID, State: capture.StateUploaded, RemoteID: "remote-1"}, nil
}

type fakeExtractor struct {
	mu     sync.Mutex
	events *[]string
	result *extraction.Result
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.events = append(*f.events, "extract")
	return f.result, f.err
}

type fakeCalendar struct{ events []calendar.Event }

func (f *fakeCalendar) ListEvents(ctx context.Context, ownerID string, from, to time.Time) ([]calendar.Event, error) {
	return f.events, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	seen  []string
}

func (r *recordingNotifier) Notify(ctx context.Context, ownerID string, event notify.EventType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, fmt.Sprintf("%s:%s", ownerID, event))
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

type fixture struct {
	svc      *Service
	store    *memStore
	captures *fakeCaptures
	extract  *fakeExtractor
	notifier *recordingNotifier
	events   []string
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), notifier: &recordingNotifier{}, now: t0}
	f.captures = &fakeCaptures{events: &f.events}
	f.extract = &fakeExtractor{
		events: &f.events,
		result: &extraction.Result{
			Summary:  "a summary",
			Insights: []extraction.Insight{{Type: extraction.InsightPractical, Text: "x", Importance: 3}},
			Acts:     []act.Act{{ID: "a1", Text: "Do it", Category: act.CategoryAction, Status: act.StatusNotStarted}},
			Method:   act.MethodHeuristic,
		},
	}

	svc, err := NewService(f.store, f.captures, f.extract, &fakeCalendar{}, f.notifier, zap.NewNop())
	require.NoError(t, err)
	svc.clock = func() time.Time { return f.now }
	f.svc = svc
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestStart(t *testing.T) {
	f := newFixture(t)

	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{Title: "standup", ContextTag: TagMeeting})
	require.NoError(t, err)

	assert.Equal(t, StateRecording, sess.State)
	assert.True(t, sess.Active)
	assert.Equal(t, t0, sess.StartedAt)
	assert.Contains(t, f.notifier.all(), "owner-1:recording_started")
}

func TestStart_SecondActiveConflicts(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), "owner-1", Meta{})
	assert.ErrorIs(t, err, ErrSessionConflict)

	// A different owner is unaffected.
	_, err = f.svc.Start(context.Background(), "owner-2", Meta{})
	assert.NoError(t, err)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)

	f.advance(10 * time.Second)
	paused, err := f.svc.Pause(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePaused, paused.State)

	// Pausing again is an error, not a no-op.
	_, err = f.svc.Pause(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.advance(5 * time.Second)
	resumed, err := f.svc.Resume(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRecording, resumed.State)
	assert.Equal(t, 5*time.Second, resumed.PausedTotal)

	_, err = f.svc.Resume(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestElapsed_ExcludesPausedTime(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)

	f.advance(10 * time.Second)
	_, err = f.svc.Pause(context.Background(), sess.ID)
	require.NoError(t, err)

	f.advance(5 * time.Second)
	_, err = f.svc.Resume(context.Background(), sess.ID)
	require.NoError(t, err)

	f.advance(10 * time.Second)
	stopped, err := f.svc.Stop(context.Background(), sess.ID, StopRequest{Payload: []byte("audio")})
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, stopped.Elapsed(f.now))
}

func TestStop_PersistsBeforeExtraction(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)

	stopped, err := f.svc.Stop(context.Background(), sess.ID, StopRequest{Payload: []byte("audio"), Transcript: "hello"})
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, stopped.State)
	assert.False(t, stopped.Active)

	f.svc.Wait()

	require.Equal(t, "persist", f.events[0])
	assert.Contains(t, f.events, "extract")
	assert.Less(t, indexOf(f.events, "persist"), indexOf(f.events, "extract"))

	final, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, final.State)
	assert.False(t, final.Degraded)
	assert.Equal(t, "a summary", final.Summary)
	assert.Len(t, f.store.acts[sess.ID], 1)
	assert.Contains(t, f.notifier.all(), "owner-1:extraction_complete")
}

func TestStop_DegradedExtractionStillCompletes(t *testing.T) {
	f := newFixture(t)
	f.extract.result = &extraction.Result{Summary: "partial"}
	f.extract.err = fmt.Errorf("%w: provider timeout", extraction.ErrExtractionDegraded)

	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)
	_, err = f.svc.Stop(context.Background(), sess.ID, StopRequest{Payload: []byte("audio")})
	require.NoError(t, err)

	f.svc.Wait()

	final, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, final.State)
	assert.True(t, final.Degraded)
	assert.Equal(t, "partial", final.Summary)
	assert.Empty(t, f.store.acts[sess.ID])
}

func TestStop_UploadCredentialFailureDoesNotBlockExtraction(t *testing.T) {
	f := newFixture(t)
	f.captures.uploadErr = fmt.Errorf("%w: saved locally", calendar.ErrCredentialInvalid)

	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)
	_, err = f.svc.Stop(context.Background(), sess.ID, StopRequest{Payload: []byte("audio"), Transcript: "hello"})
	require.NoError(t, err)

	f.svc.Wait()

	final, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, final.State)
	assert.False(t, final.Degraded)
}

func TestStop_InvalidFromProcessing(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)
	_, err = f.svc.Stop(context.Background(), sess.ID, StopRequest{Payload: []byte("audio")})
	require.NoError(t, err)

	_, err = f.svc.Stop(context.Background(), sess.ID, StopRequest{Payload: []byte("audio")})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	f.svc.Wait()
}

func TestStop_PersistFailureFailsSession(t *testing.T) {
	f := newFixture(t)
	f.captures.persistErr = capture.ErrStorageExhausted

	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)
	_, err = f.svc.Stop(context.Background(), sess.ID, StopRequest{Payload: []byte("audio")})
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrStorageExhausted)

	final, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, final.State)
	assert.Empty(t, f.store.acts[sess.ID])
}

func TestStop_RequiresPayloadOrTranscript(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)

	_, err = f.svc.Stop(context.Background(), sess.ID, StopRequest{})
	assert.Error(t, err)
}

func TestArchive_HidesFromListing(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Start(context.Background(), "owner-1", Meta{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Archive(context.Background(), sess.ID))

	listed, err := f.svc.List(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Archived sessions remain retrievable; nothing is deleted.
	got, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)
}

func indexOf(list []string, want string) int {
	for i, s := range list {
		if s == want {
			return i
		}
	}
	return -1
}
