package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/metrics"
)

type blockingJob struct {
	name    string
	err     error
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	runs    int
}

func (j *blockingJob) Name() string { return j.name }

func (j *blockingJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	if j.started != nil {
		j.started <- struct{}{}
		<-j.release
	}
	return j.err
}

func TestAddJobRejectsBadSpecAndDuplicates(t *testing.T) {
	s := NewCronScheduler()
	job := &blockingJob{name: "a"}
	require.Error(t, s.AddJob(job, "not a spec"))
	require.NoError(t, s.AddJob(job, "0 3 * * *"))
	require.Error(t, s.AddJob(job, "0 4 * * *"))
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &blockingJob{name: "overlap", started: make(chan struct{}), release: make(chan struct{})}
	run := s.wrap(job)

	before := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("overlap", "skipped"))
	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	<-job.started
	run()
	close(job.release)
	<-done

	require.Equal(t, 1, job.runs)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("overlap", "skipped")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("overlap", "ok")))
}

func TestWrapCountsErrors(t *testing.T) {
	s := NewCronScheduler()
	s.wrap(&blockingJob{name: "failing", err: errors.New("boom")})()
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("failing", "error")))
}
