// service_test exercises the transcoding pipeline orchestrator against
// mocked encoder and registry surfaces: jobs must move through their
// states in order, failures must be classified as retryable or permanent,
// and a partial rendition set must never survive a failed run.
package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/go-chanassert"
	"github.com/kinovod/kino/internal/artifacts"
	"github.com/kinovod/kino/internal/event"
	"github.com/kinovod/kino/internal/ffmpeg"
	"github.com/kinovod/kino/internal/movie"
	"github.com/kinovod/kino/internal/pipeline"
	"github.com/kinovod/kino/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var errExpected = errors.New("test: expected error")

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) HasAudioStream(path string) (bool, error) {
	args := m.Called(path)
	return args.Bool(0), args.Error(1)
}

type mockRenditioner struct {
	mock.Mock
}

func (m *mockRenditioner) Render(ctx context.Context, sourcePath string, outputDir string, target ffmpeg.Target, includeAudio bool) (string, error) {
	args := m.Called(sourcePath, outputDir, target.Label, includeAudio)
	return args.String(0), args.Error(1)
}

type mockThumbnailer struct {
	mock.Mock
}

func (m *mockThumbnailer) Generate(ctx context.Context, sourcePath string, outputPath string) error {
	args := m.Called(sourcePath, outputPath)
	return args.Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetMovie(id int64) (*movie.Movie, error) {
	args := m.Called(id)
	if v, ok := args.Get(0).(*movie.Movie); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) SetThumbnailPath(movieID int64, path string) error {
	args := m.Called(movieID, path)
	return args.Error(0)
}

func (m *mockStore) SetPlaylistPath(movieID int64, path string) error {
	args := m.Called(movieID, path)
	return args.Error(0)
}

type serviceMocks struct {
	store       *mockStore
	prober      *mockProber
	renditioner *mockRenditioner
	thumbnailer *mockThumbnailer
}

func newServiceMocks() serviceMocks {
	return serviceMocks{
		store:       &mockStore{},
		prober:      &mockProber{},
		renditioner: &mockRenditioner{},
		thumbnailer: &mockThumbnailer{},
	}
}

func (m serviceMocks) assertExpectations(t *testing.T) {
	m.store.AssertExpectations(t)
	m.prober.AssertExpectations(t)
	m.renditioner.AssertExpectations(t)
	m.thumbnailer.AssertExpectations(t)
}

// startService constructs and runs a pipeline service over the provided
// mocks and a throwaway media directory, stopping it when the test ends.
func startService(t *testing.T, config pipeline.Config, eventBus event.EventCoordinator, mocks serviceMocks) (pipeline.Service, artifacts.MediaPaths) {
	paths := artifacts.NewMediaPaths(t.TempDir())
	srv := pipeline.New(config, eventBus, mocks.store, mocks.prober, mocks.renditioner, mocks.thumbnailer, paths)

	wg := sync.WaitGroup{}
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		assert.Nil(t, srv.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	return srv, paths
}

func testMovie(id int64) *movie.Movie {
	return &movie.Movie{
		ID:          id,
		Title:       "Test Movie",
		Description: "...",
		CategoryID:  1,
		SourcePath:  "/media/videos/originals/source.mp4",
	}
}

// eventChannel registers a fresh buffered channel on the bus for the given
// events, for a chanassert expecter to listen over.
func eventChannel(eventBus event.EventCoordinator, events ...event.Event) chan event.HandlerEvent {
	channel := make(chan event.HandlerEvent, 10)
	eventBus.RegisterHandlerChannel(channel, events...)
	return channel
}

// matchMovieEvent matches a bus message of the given event type carrying
// the given movie ID payload.
func matchMovieEvent(expected event.Event, movieID int64) chanassert.Matcher[event.HandlerEvent] {
	return chanassert.MatchPredicate(func(message event.HandlerEvent) bool {
		return message.Event == expected && message.Payload == movieID
	})
}

func Test_SuccessfulRun_PublishesPlaylistAndThumbnail(t *testing.T) {
	t.Parallel()

	eventBus := event.New()
	// The thumbnail announcement always precedes completion: the run joins
	// the thumbnail goroutine before finalizing.
	exp := chanassert.
		NewChannelExpecter(eventChannel(eventBus, event.ThumbnailCompleteEvent, event.PipelineCompleteEvent)).
		Expect(chanassert.ExactlyNOf(1, matchMovieEvent(event.ThumbnailCompleteEvent, 1))).
		Expect(chanassert.ExactlyNOf(1, matchMovieEvent(event.PipelineCompleteEvent, 1)))
	exp.Listen()

	mocks := newServiceMocks()
	candidate := testMovie(1)
	mocks.store.On("GetMovie", int64(1)).Return(candidate, nil)
	mocks.prober.On("HasAudioStream", candidate.SourcePath).Return(true, nil)
	for _, target := range ffmpeg.RenditionLadder() {
		mocks.renditioner.
			On("Render", candidate.SourcePath, mock.Anything, target.Label, true).
			Return(filepath.Join(target.Label, ffmpeg.ManifestFilename), nil).
			Once()
	}
	mocks.thumbnailer.On("Generate", candidate.SourcePath, mock.Anything).Return(nil).Once()
	mocks.store.On("SetThumbnailPath", int64(1), mock.Anything).Return(nil).Once()
	mocks.store.On("SetPlaylistPath", int64(1), mock.Anything).Return(nil).Once()

	srv, paths := startService(t, pipeline.Config{Parallelism: 1, MaxAttempts: 3}, eventBus, mocks)
	_, err := srv.EnqueueMovie(1)
	assert.Nil(t, err)

	exp.AssertSatisfied(t, time.Second*5)

	// Completed runs are removed from the queue before being announced.
	_, err = srv.Job(1)
	assert.ErrorIs(t, err, pipeline.ErrJobNotFound)

	// The master playlist must exist on disk and reference every rendition.
	content, err := os.ReadFile(paths.MasterPlaylistPath(1))
	assert.Nil(t, err)
	assert.Contains(t, string(content), "#EXTM3U")
	for _, target := range ffmpeg.RenditionLadder() {
		assert.Contains(t, string(content), filepath.Join(target.Label, ffmpeg.ManifestFilename))
	}

	mocks.assertExpectations(t)
}

func Test_SilentSource_EncodedWithoutAudio(t *testing.T) {
	t.Parallel()

	eventBus := event.New()
	exp := chanassert.
		NewChannelExpecter(eventChannel(eventBus, event.PipelineCompleteEvent)).
		Expect(chanassert.ExactlyNOf(1, matchMovieEvent(event.PipelineCompleteEvent, 2)))
	exp.Listen()

	mocks := newServiceMocks()
	candidate := testMovie(2)
	thumbnailPath := "/media/thumbnails/2_thumb.jpg"
	candidate.ThumbnailPath = &thumbnailPath

	mocks.store.On("GetMovie", int64(2)).Return(candidate, nil)
	mocks.prober.On("HasAudioStream", candidate.SourcePath).Return(false, nil)
	mocks.renditioner.
		On("Render", candidate.SourcePath, mock.Anything, mock.Anything, false).
		Return("", nil).
		Times(len(ffmpeg.RenditionLadder()))
	mocks.store.On("SetPlaylistPath", int64(2), mock.Anything).Return(nil).Once()

	srv, _ := startService(t, pipeline.Config{Parallelism: 1, MaxAttempts: 3}, eventBus, mocks)
	_, err := srv.EnqueueMovie(2)
	assert.Nil(t, err)

	exp.AssertSatisfied(t, time.Second*5)

	_, err = srv.Job(2)
	assert.ErrorIs(t, err, pipeline.ErrJobNotFound)

	// The movie already had a thumbnail, so extraction must not have run.
	mocks.thumbnailer.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	mocks.assertExpectations(t)
}

func Test_ProbeFailure_FailsWithoutRetry(t *testing.T) {
	t.Parallel()

	eventBus := event.New()
	// One update marks the probing transition, the second the terminal
	// settle.
	exp := chanassert.
		NewChannelExpecter(eventChannel(eventBus, event.PipelineUpdateEvent)).
		Expect(chanassert.ExactlyNOf(2, matchMovieEvent(event.PipelineUpdateEvent, 3)))
	exp.Listen()

	mocks := newServiceMocks()
	candidate := testMovie(3)
	mocks.store.On("GetMovie", int64(3)).Return(candidate, nil)
	mocks.prober.On("HasAudioStream", candidate.SourcePath).Return(false, errExpected).Once()

	srv, _ := startService(t, pipeline.Config{Parallelism: 1, MaxAttempts: 3}, eventBus, mocks)
	_, err := srv.EnqueueMovie(3)
	assert.Nil(t, err)

	exp.AssertSatisfied(t, time.Second*5)

	// An unreadable source is a permanent failure: exactly one attempt,
	// and no encode work was ever started.
	job, err := srv.Job(3)
	assert.Nil(t, err)
	assert.Equal(t, pipeline.FAILED, job.Status)
	assert.Equal(t, 1, job.Attempts)
	mocks.renditioner.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mocks.assertExpectations(t)
}

func Test_InvalidMovie_FailsValidationBeforeProbe(t *testing.T) {
	t.Parallel()

	eventBus := event.New()
	// Validation rejects the movie before any transition is announced; the
	// only update is the terminal settle.
	exp := chanassert.
		NewChannelExpecter(eventChannel(eventBus, event.PipelineUpdateEvent)).
		Expect(chanassert.ExactlyNOf(1, matchMovieEvent(event.PipelineUpdateEvent, 4)))
	exp.Listen()

	mocks := newServiceMocks()
	candidate := testMovie(4)
	candidate.Description = ""
	mocks.store.On("GetMovie", int64(4)).Return(candidate, nil)

	srv, _ := startService(t, pipeline.Config{Parallelism: 1, MaxAttempts: 3}, eventBus, mocks)
	_, err := srv.EnqueueMovie(4)
	assert.Nil(t, err)

	exp.AssertSatisfied(t, time.Second*5)

	job, err := srv.Job(4)
	assert.Nil(t, err)
	assert.Equal(t, pipeline.FAILED, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError, "description")

	mocks.prober.AssertNotCalled(t, "HasAudioStream", mock.Anything)
	mocks.assertExpectations(t)
}

func Test_RenditionFailure_RetriesThenDiscardsPartialOutput(t *testing.T) {
	t.Parallel()

	eventBus := event.New()
	// Each attempt announces the probing and encoding transitions, the
	// first rendition's completion and its settle: four updates per
	// attempt, over two attempts.
	exp := chanassert.
		NewChannelExpecter(eventChannel(eventBus, event.PipelineUpdateEvent)).
		Expect(chanassert.ExactlyNOf(8, matchMovieEvent(event.PipelineUpdateEvent, 5)))
	exp.Listen()

	mocks := newServiceMocks()
	candidate := testMovie(5)
	thumbnailPath := "/media/thumbnails/5_thumb.jpg"
	candidate.ThumbnailPath = &thumbnailPath
	mocks.store.On("GetMovie", int64(5)).Return(candidate, nil)
	mocks.prober.On("HasAudioStream", candidate.SourcePath).Return(true, nil)

	ladder := ffmpeg.RenditionLadder()

	// First rendition succeeds and leaves output on disk; the second always
	// fails. The service must erase the whole movie directory each time.
	mocks.renditioner.
		On("Render", candidate.SourcePath, mock.Anything, ladder[0].Label, true).
		Run(func(args mock.Arguments) {
			outputDir, ok := args.Get(1).(string)
			assert.True(t, ok)
			assert.Nil(t, os.MkdirAll(outputDir, os.ModeDir|os.ModePerm))
		}).
		Return("", nil)
	mocks.renditioner.
		On("Render", candidate.SourcePath, mock.Anything, ladder[1].Label, true).
		Return("", errExpected)

	srv, paths := startService(t, pipeline.Config{Parallelism: 1, MaxAttempts: 2}, eventBus, mocks)
	_, err := srv.EnqueueMovie(5)
	assert.Nil(t, err)

	exp.AssertSatisfied(t, time.Second*5)

	job, err := srv.Job(5)
	assert.Nil(t, err)
	assert.Equal(t, pipeline.FAILED, job.Status)
	assert.Equal(t, 2, job.Attempts)

	// All-or-nothing: no partial rendition set survives the failed run.
	_, statErr := os.Stat(paths.MovieDir(5))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))

	mocks.store.AssertNotCalled(t, "SetPlaylistPath", mock.Anything, mock.Anything)
	mocks.assertExpectations(t)
}

func Test_ThumbnailFailure_DoesNotFailTheRun(t *testing.T) {
	t.Parallel()

	eventBus := event.New()
	exp := chanassert.
		NewChannelExpecter(eventChannel(eventBus, event.PipelineCompleteEvent)).
		Expect(chanassert.ExactlyNOf(1, matchMovieEvent(event.PipelineCompleteEvent, 6)))
	exp.Listen()

	mocks := newServiceMocks()
	candidate := testMovie(6)
	mocks.store.On("GetMovie", int64(6)).Return(candidate, nil)
	mocks.prober.On("HasAudioStream", candidate.SourcePath).Return(true, nil)
	mocks.renditioner.
		On("Render", candidate.SourcePath, mock.Anything, mock.Anything, true).
		Return("", nil).
		Times(len(ffmpeg.RenditionLadder()))
	mocks.thumbnailer.On("Generate", candidate.SourcePath, mock.Anything).Return(errExpected).Once()
	mocks.store.On("SetPlaylistPath", int64(6), mock.Anything).Return(nil).Once()

	srv, _ := startService(t, pipeline.Config{Parallelism: 1, MaxAttempts: 1}, eventBus, mocks)
	_, err := srv.EnqueueMovie(6)
	assert.Nil(t, err)

	exp.AssertSatisfied(t, time.Second*5)

	// The run completed despite the thumbnail failure, and no thumbnail
	// reference was recorded.
	_, err = srv.Job(6)
	assert.ErrorIs(t, err, pipeline.ErrJobNotFound)
	mocks.store.AssertNotCalled(t, "SetThumbnailPath", mock.Anything, mock.Anything)
	mocks.assertExpectations(t)
}

func Test_EnqueueMovie_RefusedWhileJobActive(t *testing.T) {
	t.Parallel()

	// The service is never started, so the first job stays PENDING.
	mocks := newServiceMocks()
	paths := artifacts.NewMediaPaths(t.TempDir())
	srv := pipeline.New(pipeline.Config{Parallelism: 1, MaxAttempts: 3}, event.New(), mocks.store, mocks.prober, mocks.renditioner, mocks.thumbnailer, paths)

	first, err := srv.EnqueueMovie(7)
	assert.Nil(t, err)
	assert.Equal(t, pipeline.PENDING, first.Status)

	_, err = srv.EnqueueMovie(7)
	assert.ErrorIs(t, err, pipeline.ErrMovieAlreadyQueued)

	// A different movie is unaffected by the lease.
	_, err = srv.EnqueueMovie(8)
	assert.Nil(t, err)
}

func Test_DropJobsForMovie_RemovesQueuedJob(t *testing.T) {
	t.Parallel()

	mocks := newServiceMocks()
	paths := artifacts.NewMediaPaths(t.TempDir())
	srv := pipeline.New(pipeline.Config{Parallelism: 1, MaxAttempts: 3}, event.New(), mocks.store, mocks.prober, mocks.renditioner, mocks.thumbnailer, paths)

	_, err := srv.EnqueueMovie(9)
	assert.Nil(t, err)

	srv.DropJobsForMovie(9)

	_, err = srv.Job(9)
	assert.ErrorIs(t, err, pipeline.ErrJobNotFound)

	// With the old job dropped the movie may be enqueued again.
	_, err = srv.EnqueueMovie(9)
	assert.Nil(t, err)
}
