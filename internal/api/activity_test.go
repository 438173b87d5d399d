package api

import (
	"testing"

	"github.com/kinovod/kino/internal/pipeline"
	"github.com/stretchr/testify/assert"
)

type stubPipelineService struct {
	jobs []*pipeline.Job
}

func (s *stubPipelineService) Job(movieID int64) (*pipeline.Job, error) {
	for _, job := range s.jobs {
		if job.MovieID == movieID {
			return job, nil
		}
	}

	return nil, pipeline.ErrJobNotFound
}

func (s *stubPipelineService) Jobs() []*pipeline.Job { return s.jobs }

// A freshly connected client is furnished with the current pipeline queue,
// shaped identically to the job update messages it will receive afterwards.
func Test_ConnectionPayload_SnapshotsTheQueue(t *testing.T) {
	t.Parallel()

	job := pipeline.NewJob(12)
	job.Status = pipeline.ENCODING
	job.Attempts = 1
	job.RenditionsDone = 2
	job.RenditionsTotal = 3

	hub := newBroadcaster(nil, &stubPipelineService{jobs: []*pipeline.Job{job}}, nil)
	payload := hub.ConnectionPayload()

	updates, ok := payload["jobs"].([]JobUpdate)
	assert.True(t, ok, "expected payload to carry a job update slice")
	assert.Len(t, updates, 1)
	assert.Equal(t, int64(12), updates[0].MovieID)
	assert.Equal(t, pipeline.ENCODING.String(), updates[0].Job.Status)
	assert.Equal(t, 1, updates[0].Job.Attempts)
	assert.Equal(t, 2, updates[0].Job.RenditionsDone)
	assert.Equal(t, 3, updates[0].Job.RenditionsTotal)
}

func Test_ConnectionPayload_EmptyQueue(t *testing.T) {
	t.Parallel()

	hub := newBroadcaster(nil, &stubPipelineService{}, nil)
	payload := hub.ConnectionPayload()

	updates, ok := payload["jobs"].([]JobUpdate)
	assert.True(t, ok)
	assert.Empty(t, updates)
}
