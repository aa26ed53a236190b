package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"stockrecs/internal/jobs"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestAddJob_Schedules(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{DefaultSchedule, false},
		{"30 0 2 * * *", false},
		{"@daily", false},
		{"@every 30s", false},
		{"not a schedule", true},
		{"61 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			err := s.AddJob(tt.schedule, job)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduler_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(zerolog.Nop())
	assert.True(t, s.Next().IsZero())

	require.NoError(t, s.AddJob("@every 1h", &countingJob{}))
	s.Start()

	next := s.Next()
	assert.False(t, next.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Hour), next, time.Minute)

	s.Stop()
}

func TestScheduler_FiresJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("failing jobs keep the schedule")}
	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()

	require.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())
}

type fakeSubmitter struct {
	triggers []string
	job      jobs.Job
	err      error
}

func (f *fakeSubmitter) Submit(trigger string) (jobs.Job, error) {
	f.triggers = append(f.triggers, trigger)
	return f.job, f.err
}

func TestReconcileJob(t *testing.T) {
	sub := &fakeSubmitter{job: jobs.Job{ID: "abc"}}
	job := ReconcileJob{Jobs: sub, Log: zerolog.Nop()}

	assert.Equal(t, "reconcile", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, []string{"cron"}, sub.triggers)

	sub.err = jobs.ErrRunInProgress
	assert.NoError(t, job.Run(), "an overlapping run is skipped, not failed")

	sub.err = jobs.ErrShutdown
	assert.ErrorIs(t, job.Run(), jobs.ErrShutdown)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule(DefaultSchedule))
	assert.NoError(t, ValidateSchedule("@every 6h"))
	assert.Error(t, ValidateSchedule("0 25 * * *"))
	assert.Error(t, ValidateSchedule(""))
}
