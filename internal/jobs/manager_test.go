package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"stockrecs/internal/coordinator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func shutdown(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.Shutdown(waitCtx(t)))
}

func TestManager_SubmitSucceeds(t *testing.T) {
	m := New(func(ctx context.Context) (coordinator.Summary, error) {
		return coordinator.Summary{Source: "mock", Results: 3}, nil
	}, 0, zerolog.Nop())
	defer shutdown(t, m)

	job, err := m.Submit("manual")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "manual", job.Trigger)
	assert.Equal(t, StatePending, job.State)

	done, err := m.Wait(waitCtx(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, done.State)
	require.NotNil(t, done.Summary)
	assert.Equal(t, 3, done.Summary.Results)
	assert.Empty(t, done.Error)
	assert.False(t, done.Finished.Before(done.Started))

	_, active := m.Active()
	assert.False(t, active)
}

func TestManager_FailedRun(t *testing.T) {
	m := New(func(ctx context.Context) (coordinator.Summary, error) {
		return coordinator.Summary{}, errors.New("read source list: source file not found")
	}, 0, zerolog.Nop())
	defer shutdown(t, m)

	job, err := m.Submit("cron")
	require.NoError(t, err)

	done, err := m.Wait(waitCtx(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, done.State)
	assert.Equal(t, "read source list: source file not found", done.Error)
}

func TestManager_PanicFailsRun(t *testing.T) {
	m := New(func(ctx context.Context) (coordinator.Summary, error) {
		panic("boom")
	}, 0, zerolog.Nop())
	defer shutdown(t, m)

	job, err := m.Submit("manual")
	require.NoError(t, err)

	done, err := m.Wait(waitCtx(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, done.State)

	// The manager is still usable.
	_, err = m.Submit("manual")
	require.NoError(t, err)
}

func TestManager_RejectsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	m := New(func(ctx context.Context) (coordinator.Summary, error) {
		<-release
		return coordinator.Summary{}, nil
	}, 0, zerolog.Nop())
	defer shutdown(t, m)

	first, err := m.Submit("manual")
	require.NoError(t, err)

	active, err := m.Submit("cron")
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, first.ID, active.ID)

	current, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, first.ID, current.ID)

	close(release)
	_, err = m.Wait(waitCtx(t), first.ID)
	require.NoError(t, err)

	second, err := m.Submit("cron")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	_, err = m.Wait(waitCtx(t), second.ID)
	require.NoError(t, err)
}

func TestManager_ListNewestFirstAndBounded(t *testing.T) {
	m := New(func(ctx context.Context) (coordinator.Summary, error) {
		return coordinator.Summary{}, nil
	}, 3, zerolog.Nop())
	defer shutdown(t, m)

	var ids []string
	for i := 0; i < 5; i++ {
		job, err := m.Submit("manual")
		require.NoError(t, err)
		_, err = m.Wait(waitCtx(t), job.ID)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, ids[4], list[0].ID)
	assert.Equal(t, ids[3], list[1].ID)
	assert.Equal(t, ids[2], list[2].ID)

	_, err := m.Get(ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := m.Get(ids[4])
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, got.State)
}

func TestManager_UnknownJob(t *testing.T) {
	m := New(nil, 0, zerolog.Nop())
	defer shutdown(t, m)

	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_WaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	m := New(func(ctx context.Context) (coordinator.Summary, error) {
		<-release
		return coordinator.Summary{}, nil
	}, 0, zerolog.Nop())
	defer shutdown(t, m)
	defer close(release)

	job, err := m.Submit("manual")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Wait(ctx, job.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_ShutdownCancelsActiveRun(t *testing.T) {
	started := make(chan struct{})
	m := New(func(ctx context.Context) (coordinator.Summary, error) {
		close(started)
		<-ctx.Done()
		return coordinator.Summary{}, ctx.Err()
	}, 0, zerolog.Nop())

	job, err := m.Submit("manual")
	require.NoError(t, err)
	<-started

	require.NoError(t, m.Shutdown(waitCtx(t)))

	got, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Contains(t, got.Error, "context canceled")

	_, err = m.Submit("manual")
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestState_Done(t *testing.T) {
	assert.False(t, StatePending.Done())
	assert.False(t, StateRunning.Done())
	assert.True(t, StateSucceeded.Done())
	assert.True(t, StateFailed.Done())
}
