package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/eliseohh/echobot/internal/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema())
	return NewStore(db)
}

func TestStore_ModeDefaultsToEcho(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Mode(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ModeEcho, m)
}

func TestStore_SetMode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetMode(ctx, 1, ModeReverse))
	m, err := s.Mode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ModeReverse, m)

	require.NoError(t, s.SetMode(ctx, 1, ModeAge))
	m, err = s.Mode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ModeAge, m)

	other, err := s.Mode(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, ModeEcho, other)

	assert.Error(t, s.SetMode(ctx, 1, Mode("SHOUT")))
}

func TestStore_AgeSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fresh, err := s.AgeSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, age.NewSession(), fresh)

	want := &age.Session{Year: 1990, Month: 3, Day: 15, Hour: 6, Minute: 0, Step: age.StepMinute}
	require.NoError(t, s.SaveAgeSession(ctx, 7, want))

	got, err := s.AgeSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.Minute = 30
	require.NoError(t, s.SaveAgeSession(ctx, 7, want))
	got, err = s.AgeSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Minute)

	require.NoError(t, s.DeleteAgeSession(ctx, 7))
	got, err = s.AgeSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, age.StepYear, got.Step)
}

func TestStore_PruneAgeSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.SaveAgeSession(ctx, 1, age.NewSession()))

	s.now = func() time.Time { return base.Add(20 * time.Hour) }
	require.NoError(t, s.SaveAgeSession(ctx, 2, age.NewSession()))

	s.now = func() time.Time { return base.Add(25 * time.Hour) }
	n, err := s.PruneAgeSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.AgeWizards)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetMode(ctx, 1, ModeEcho))
	require.NoError(t, s.SetMode(ctx, 2, ModeReverse))
	require.NoError(t, s.SetMode(ctx, 3, ModeReverse))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Chats)
	assert.Equal(t, 2, st.ByMode[ModeReverse])
	assert.Equal(t, 1, st.ByMode[ModeEcho])
	assert.Equal(t, 0, st.AgeWizards)
}

func TestDB_NukeAndReinit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SetMode(ctx, 1, ModeReverse))

	require.NoError(t, s.db.Nuke())
	require.NoError(t, s.db.InitSchema())

	m, err := s.Mode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ModeEcho, m)
}

func TestStore_RunJanitorStops(t *testing.T) {
	s := newTestStore(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	require.NoError(t, s.SaveAgeSession(ctx, 1, age.NewSession()))
	s.now = time.Now

	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, 10*time.Millisecond, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		st, err := s.Stats(context.Background())
		return err == nil && st.AgeWizards == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
