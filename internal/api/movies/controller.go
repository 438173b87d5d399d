package movies

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kinovod/kino/internal/artifacts"
	"github.com/kinovod/kino/internal/event"
	"github.com/kinovod/kino/internal/movie"
	"github.com/kinovod/kino/internal/pipeline"
	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		CreateMovie(m *movie.Movie) error
		GetMovie(id int64) (*movie.Movie, error)
		ListMovies() ([]*movie.MovieListResult, error)
		DeleteMovie(id int64) (*movie.Movie, error)
		GetCategory(id int64) (*movie.Category, error)
	}

	// PipelineService exposes the job queue so callers can observe the
	// progress of a movie's transcoding run.
	PipelineService interface {
		Job(movieID int64) (*pipeline.Job, error)
	}

	// ArtifactReconciler erases on-disk artifacts once a movie's registry
	// row has been removed.
	ArtifactReconciler interface {
		OnDelete(movieID int64, sourcePath string)
	}

	MovieController struct {
		store           Store
		pipelineService PipelineService
		reconciler      ArtifactReconciler
		eventBus        event.EventDispatcher
		paths           artifacts.MediaPaths
		validate        *validator.Validate
	}

	createMovieRequest struct {
		Title       string `form:"title" validate:"required,max=255"`
		Description string `form:"description" validate:"required"`
		CategoryID  int64  `form:"category_id" validate:"required,gt=0"`
	}
)

func New(
	store Store,
	pipelineService PipelineService,
	reconciler ArtifactReconciler,
	eventBus event.EventDispatcher,
	paths artifacts.MediaPaths,
) *MovieController {
	return &MovieController{
		store:           store,
		pipelineService: pipelineService,
		reconciler:      reconciler,
		eventBus:        eventBus,
		paths:           paths,
		validate:        validator.New(),
	}
}

func (controller *MovieController) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/", controller.create)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete)
	eg.GET("/:id/job/", controller.getJob)
}

func (controller *MovieController) list(ec echo.Context) error {
	results, err := controller.store.ListMovies()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list movies: %v", err))
	}

	return ec.JSON(http.StatusOK, newListDtos(results))
}

func (controller *MovieController) get(ec echo.Context) error {
	id, err := parseID(ec)
	if err != nil {
		return err
	}

	item, err := controller.store.GetMovie(id)
	if err != nil {
		return wrapStoreError("failed to fetch movie", err)
	}

	return ec.JSON(http.StatusOK, newDto(item))
}

// create accepts a multipart upload of a new movie (metadata fields plus the
// source file), persists the source inside the media directory and creates
// the registry row. The transcoding pipeline is notified only once the row
// is durably committed - a crash between the two leaves a row which can be
// re-enqueued, never a job without a row.
func (controller *MovieController) create(ec echo.Context) error {
	request := createMovieRequest{}
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("illegal request body: %v", err))
	}
	if err := controller.validate.Struct(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("request failed validation: %v", err))
	}

	if _, err := controller.store.GetCategory(request.CategoryID); err != nil {
		return wrapStoreError("failed to resolve category", err)
	}

	fileHeader, err := ec.FormFile("source")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "a 'source' video file is required")
	}

	sourcePath, err := controller.saveUpload(fileHeader.Filename, fileHeader)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to store upload: %v", err))
	}

	newMovie := &movie.Movie{
		Title:       request.Title,
		Description: request.Description,
		CategoryID:  request.CategoryID,
		SourcePath:  sourcePath,
	}
	if err := controller.store.CreateMovie(newMovie); err != nil {
		// The row never existed, so the saved source is orphaned; remove it.
		os.Remove(sourcePath)

		return wrapStoreError("failed to create movie", err)
	}

	controller.eventBus.Dispatch(event.NewMovieEvent, newMovie.ID)

	return ec.JSON(http.StatusCreated, newDto(newMovie))
}

// delete removes the registry row, notifies the pipeline so any in-flight
// job is cancelled, then reconciles the disk against the now-absent row.
func (controller *MovieController) delete(ec echo.Context) error {
	id, err := parseID(ec)
	if err != nil {
		return err
	}

	deleted, err := controller.store.DeleteMovie(id)
	if err != nil {
		return wrapStoreError("failed to delete movie", err)
	}

	controller.eventBus.Dispatch(event.DeleteMovieEvent, deleted.ID)
	controller.reconciler.OnDelete(deleted.ID, deleted.SourcePath)

	return ec.NoContent(http.StatusNoContent)
}

func (controller *MovieController) getJob(ec echo.Context) error {
	id, err := parseID(ec)
	if err != nil {
		return err
	}

	job, err := controller.pipelineService.Job(id)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no pipeline job exists for this movie")
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	return ec.JSON(http.StatusOK, newJobDto(job))
}

// saveUpload streams the uploaded source in to the originals directory
// under a collision-proof name derived from the original extension.
func (controller *MovieController) saveUpload(originalName string, fileHeader *multipart.FileHeader) (string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(controller.paths.OriginalsDir(), os.ModeDir|os.ModePerm); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s%s", uuid.New(), filepath.Ext(originalName))
	destPath := controller.paths.OriginalPath(filename)
	dest, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)

		return "", err
	}

	return destPath, nil
}

func parseID(ec echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ec.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("movie ID '%s' is not valid", ec.Param("id")))
	}

	return id, nil
}

func wrapStoreError(message string, err error) error {
	if errors.Is(err, movie.ErrMovieNotFound) || errors.Is(err, movie.ErrCategoryNotFound) {
		return echo.ErrNotFound
	}

	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s: %v", message, err))
}
