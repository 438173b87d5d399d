package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/kinovod/kino/internal/artifacts"
	"github.com/kinovod/kino/internal/event"
	"github.com/kinovod/kino/internal/ffmpeg"
	"github.com/kinovod/kino/internal/movie"
	"github.com/kinovod/kino/pkg/logger"
	"github.com/kinovod/kino/pkg/worker"
)

var (
	log = logger.Get("Pipeline")

	// ErrMovieAlreadyQueued is returned when an enqueue is attempted for a
	// movie which already has a job in a non-terminal state. At most one
	// run per movie may be in flight.
	ErrMovieAlreadyQueued = errors.New("movie already has an active pipeline job")
)

type (
	// Prober inspects a source file ahead of any encode work.
	Prober interface {
		HasAudioStream(path string) (bool, error)
	}

	// Renditioner produces a single HLS rendition of a source file.
	Renditioner interface {
		Render(ctx context.Context, sourcePath string, outputDir string, target ffmpeg.Target, includeAudio bool) (string, error)
	}

	// Thumbnailer extracts a representative still frame from a source file.
	Thumbnailer interface {
		Generate(ctx context.Context, sourcePath string, outputPath string) error
	}

	// DataStore is the registry surface the pipeline needs: reading the
	// movie being processed and recording its derived artifact paths.
	DataStore interface {
		GetMovie(id int64) (*movie.Movie, error)
		SetThumbnailPath(movieID int64, path string) error
		SetPlaylistPath(movieID int64, path string) error
	}

	Config struct {
		Parallelism int `yaml:"parallelism" env:"PIPELINE_PARALLELISM" env-default:"2"`
		MaxAttempts int `yaml:"max_attempts" env:"PIPELINE_MAX_ATTEMPTS" env-default:"3"`
	}

	Service interface {
		Run(ctx context.Context) error
		EnqueueMovie(movieID int64) (*Job, error)
		DropJobsForMovie(movieID int64)
		Jobs() []*Job
		Job(movieID int64) (*Job, error)
	}

	service struct {
		*sync.Mutex
		config      Config
		eventBus    event.EventCoordinator
		store       DataStore
		prober      Prober
		renditioner Renditioner
		thumbnailer Thumbnailer
		paths       artifacts.MediaPaths
		ladder      []ffmpeg.Target

		jobs        []*Job
		workerPool  *worker.WorkerPool
		runCtx      context.Context
		runCancel   context.CancelFunc
	}
)

// New constructs the transcoding pipeline service. The service does nothing
// until Run is called; movies enqueued before that point simply wait.
func New(
	config Config,
	eventBus event.EventCoordinator,
	store DataStore,
	prober Prober,
	renditioner Renditioner,
	thumbnailer Thumbnailer,
	paths artifacts.MediaPaths,
) Service {
	return &service{
		Mutex:       &sync.Mutex{},
		config:      config,
		eventBus:    eventBus,
		store:       store,
		prober:      prober,
		renditioner: renditioner,
		thumbnailer: thumbnailer,
		paths:       paths,
		ladder:      ffmpeg.RenditionLadder(),
		workerPool:  worker.NewWorkerPool(),
	}
}

// Run starts the worker pool and blocks, servicing bus events, until the
// provided context is cancelled. Movie creation events enqueue jobs; movie
// deletion events cancel and drop any jobs for that movie.
func (service *service) Run(ctx context.Context) error {
	service.runCtx, service.runCancel = context.WithCancel(ctx)
	defer service.runCancel()

	for i := 0; i < service.config.Parallelism; i++ {
		label := fmt.Sprintf("transcode_worker_%d", i)
		if err := service.workerPool.PushWorker(worker.NewWorker(label, service.claimAndProcess)); err != nil {
			return fmt.Errorf("failed to populate pipeline worker pool: %w", err)
		}
	}
	if err := service.workerPool.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline worker pool: %w", err)
	}
	defer service.workerPool.Close()

	eventChannel := make(event.HandlerChannel, 10)
	service.eventBus.RegisterHandlerChannel(eventChannel, event.NewMovieEvent, event.DeleteMovieEvent)

	for {
		select {
		case <-ctx.Done():
			return nil
		case message := <-eventChannel:
			movieID, ok := message.Payload.(int64)
			if !ok {
				log.Emit(logger.ERROR, "Illegal payload for event %s: %#v is not a movie ID\n", message.Event, message.Payload)
				continue
			}

			switch message.Event {
			case event.NewMovieEvent:
				if _, err := service.EnqueueMovie(movieID); err != nil {
					log.Emit(logger.WARNING, "Cannot enqueue movie %d: %v\n", movieID, err)
				}
			case event.DeleteMovieEvent:
				service.DropJobsForMovie(movieID)
			}
		}
	}
}

// EnqueueMovie creates a PENDING job for the given movie and wakes the
// worker pool. Refused while a non-terminal job for the same movie exists;
// a FAILED job does not block re-enqueueing, but is discarded when the
// replacement arrives.
func (service *service) EnqueueMovie(movieID int64) (*Job, error) {
	service.Lock()
	defer service.Unlock()

	retained := service.jobs[:0]
	for _, existing := range service.jobs {
		if existing.MovieID == movieID {
			if !existing.isTerminal() {
				return nil, ErrMovieAlreadyQueued
			}

			// A terminal job for this movie is superseded by the new run.
			continue
		}

		retained = append(retained, existing)
	}
	service.jobs = retained

	job := NewJob(movieID)
	service.jobs = append(service.jobs, job)
	log.Emit(logger.NEW, "Queued %s\n", job)

	if err := service.workerPool.WakeupWorkers(); err != nil {
		log.Emit(logger.WARNING, "Failed to wake workers for %s: %v\n", job, err)
	}

	return job, nil
}

// DropJobsForMovie removes any queued jobs for the movie and cancels an
// in-flight run if one exists. Called when the movie row has been deleted.
func (service *service) DropJobsForMovie(movieID int64) {
	service.Lock()
	defer service.Unlock()

	retained := service.jobs[:0]
	for _, job := range service.jobs {
		if job.MovieID != movieID {
			retained = append(retained, job)
			continue
		}

		if job.cancel != nil {
			log.Emit(logger.STOP, "Cancelling in-flight %s following movie deletion\n", job)
			job.cancel()
			// The worker holding the job discards it once the cancellation
			// is observed, so it must stay visible until then.
			retained = append(retained, job)
			continue
		}

		log.Emit(logger.REMOVE, "Dropped %s following movie deletion\n", job)
	}

	service.jobs = retained
}

// Jobs returns a snapshot of the queue, most recently enqueued last.
func (service *service) Jobs() []*Job {
	service.Lock()
	defer service.Unlock()

	snapshot := make([]*Job, 0, len(service.jobs))
	for _, job := range service.jobs {
		copied := *job
		copied.cancel = nil
		snapshot = append(snapshot, &copied)
	}

	return snapshot
}

// Job returns a snapshot of the job for the given movie, if one exists.
func (service *service) Job(movieID int64) (*Job, error) {
	service.Lock()
	defer service.Unlock()

	for _, job := range service.jobs {
		if job.MovieID == movieID {
			copied := *job
			copied.cancel = nil
			return &copied, nil
		}
	}

	return nil, ErrJobNotFound
}

// claimAndProcess is the task each pool worker runs. It claims at most one
// PENDING job, drives it to a terminal state (or back to PENDING for a
// retryable failure) and reports whether any work was found so the worker
// knows to sleep.
func (service *service) claimAndProcess(w worker.Worker) (bool, error) {
	job, jobCtx := service.claimNextJob()
	if job == nil {
		return false, nil
	}

	log.Emit(logger.DEBUG, "Worker %s claimed %s\n", w.Label(), job)
	err := service.processJob(jobCtx, job)
	service.settleJob(job, jobCtx, err)

	return true, nil
}

// claimNextJob pops the oldest PENDING job, marking it PROBING and arming
// its cancellation hook so a concurrent movie deletion can abort the run.
func (service *service) claimNextJob() (*Job, context.Context) {
	service.Lock()
	defer service.Unlock()

	for _, job := range service.jobs {
		if job.Status != PENDING {
			continue
		}

		jobCtx, cancel := context.WithCancel(service.runCtx)
		job.Status = PROBING
		job.Attempts++
		job.cancel = cancel

		return job, jobCtx
	}

	return nil, nil
}

// settleJob moves a processed job to its resting state: removed when
// complete or cancelled, PENDING again for a retryable failure with
// attempts remaining, FAILED otherwise. FAILED jobs are retained in the
// queue so the failure remains visible.
func (service *service) settleJob(job *Job, jobCtx context.Context, err error) {
	service.Lock()

	if job.cancel != nil {
		job.cancel()
		job.cancel = nil
	}

	// The dispatch happens outside the lock; a handler is free to call back
	// in to the queue without deadlocking.
	var notify event.Event

	switch {
	case err == nil:
		job.Status = DONE
		log.Emit(logger.SUCCESS, "Completed %s\n", job)
		service.removeJobLocked(job)
		notify = event.PipelineCompleteEvent
	case jobCtx.Err() != nil:
		// Cancelled mid-run, almost certainly because the movie was
		// deleted. The job is discarded without a failure record.
		log.Emit(logger.REMOVE, "Discarding cancelled %s\n", job)
		service.removeJobLocked(job)
	case !isPermanentFailure(err) && job.Attempts < service.config.MaxAttempts:
		job.Status = PENDING
		job.LastError = err.Error()
		log.Emit(logger.WARNING, "Requeueing %s after attempt %d/%d failed: %v\n", job, job.Attempts, service.config.MaxAttempts, err)
		notify = event.PipelineUpdateEvent
	default:
		job.Status = FAILED
		job.LastError = err.Error()
		log.Emit(logger.ERROR, "%s failed permanently: %v\n", job, err)
		notify = event.PipelineUpdateEvent
	}

	service.Unlock()

	if notify != "" {
		service.eventBus.Dispatch(notify, job.MovieID)
	}
}

func (service *service) removeJobLocked(target *Job) {
	retained := service.jobs[:0]
	for _, job := range service.jobs {
		if job.ID != target.ID {
			retained = append(retained, job)
		}
	}

	service.jobs = retained
}

// processJob drives one attempt: probe, encode every rendition in the
// ladder, then publish the playlist. The thumbnail is extracted alongside
// the encodes and joined before finalization; its failure never fails the
// run.
func (service *service) processJob(ctx context.Context, job *Job) error {
	candidate, err := service.store.GetMovie(job.MovieID)
	if err != nil {
		if errors.Is(err, movie.ErrMovieNotFound) {
			// The row vanished between enqueue and claim. Nothing to do.
			return &ValidationError{MovieID: job.MovieID, Missing: []string{"record"}}
		}

		return &StorageError{Op: "movie lookup", err: err}
	}

	if missing := candidate.MissingRequiredFields(); len(missing) > 0 {
		return &ValidationError{MovieID: job.MovieID, Missing: missing}
	}

	service.transitionJob(job, PROBING, 0)
	includeAudio, err := service.prober.HasAudioStream(candidate.SourcePath)
	if err != nil {
		return &ProbeError{MovieID: job.MovieID, err: err}
	}

	thumbnailDone := service.spawnThumbnail(ctx, candidate)

	service.transitionJob(job, ENCODING, 0)
	for completed, target := range service.ladder {
		if _, err := service.renditioner.Render(ctx, candidate.SourcePath, service.paths.RenditionDir(candidate.ID, target.Label), target, includeAudio); err != nil {
			<-thumbnailDone
			service.discardPartialRenditions(candidate.ID)

			return err
		}

		service.transitionJob(job, ENCODING, completed+1)
	}

	<-thumbnailDone

	service.transitionJob(job, FINALIZING, len(service.ladder))
	playlistPath, err := service.paths.WriteMasterPlaylist(candidate.ID, service.ladder)
	if err != nil {
		return &StorageError{Op: "master playlist write", err: err}
	}
	if err := service.store.SetPlaylistPath(candidate.ID, playlistPath); err != nil {
		return &StorageError{Op: "playlist publication", err: err}
	}

	return nil
}

// spawnThumbnail starts thumbnail extraction in a sibling goroutine and
// returns a channel which closes once the work is finished. Extraction is
// skipped entirely when the movie already has a recorded thumbnail, which
// keeps re-runs of the pipeline from churning the file.
func (service *service) spawnThumbnail(ctx context.Context, candidate *movie.Movie) <-chan struct{} {
	done := make(chan struct{})
	if candidate.HasThumbnail() {
		log.Emit(logger.DEBUG, "Movie %d already has a thumbnail, skipping extraction\n", candidate.ID)
		close(done)

		return done
	}

	go func() {
		defer close(done)

		outputPath := service.paths.ThumbnailPath(candidate.ID)
		if err := service.thumbnailer.Generate(ctx, candidate.SourcePath, outputPath); err != nil {
			log.Emit(logger.WARNING, "Thumbnail extraction for movie %d failed (continuing): %v\n", candidate.ID, err)

			return
		}

		if err := service.store.SetThumbnailPath(candidate.ID, outputPath); err != nil {
			log.Emit(logger.WARNING, "Failed to record thumbnail for movie %d: %v\n", candidate.ID, err)

			return
		}

		service.eventBus.Dispatch(event.ThumbnailCompleteEvent, candidate.ID)
	}()

	return done
}

// discardPartialRenditions removes the entire derived output tree for the
// movie. A failed encode must not leave a subset of the ladder behind; the
// retry regenerates everything from scratch.
func (service *service) discardPartialRenditions(movieID int64) {
	movieDir := service.paths.MovieDir(movieID)
	if err := os.RemoveAll(movieDir); err != nil {
		log.Emit(logger.WARNING, "Failed to discard partial renditions at %s: %v\n", movieDir, err)
	}
}

func (service *service) transitionJob(job *Job, status JobStatus, renditionsDone int) {
	service.Lock()
	job.Status = status
	job.RenditionsDone = renditionsDone
	job.RenditionsTotal = len(service.ladder)
	service.Unlock()

	service.eventBus.Dispatch(event.PipelineUpdateEvent, job.MovieID)
}
