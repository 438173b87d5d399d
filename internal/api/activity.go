package api

import (
	"errors"

	"github.com/kinovod/kino/internal/http/websocket"
	"github.com/kinovod/kino/internal/movie"
	"github.com/kinovod/kino/internal/pipeline"
)

const (
	TitleJobUpdate   = "PIPELINE_JOB_UPDATE"
	TitleMovieUpdate = "MOVIE_UPDATE"
)

type (
	JobUpdate struct {
		MovieID int64          `json:"movie_id"`
		Job     *jobActivity   `json:"job"`
		Movie   *movieActivity `json:"movie"`
	}

	jobActivity struct {
		Status          string `json:"status"`
		Attempts        int    `json:"attempts"`
		RenditionsDone  int    `json:"renditions_done"`
		RenditionsTotal int    `json:"renditions_total"`
	}

	movieActivity struct {
		Title        string `json:"title"`
		HasThumbnail bool   `json:"has_thumbnail"`
		HasPlaylist  bool   `json:"has_playlist"`
	}

	broadcasterStore interface {
		GetMovie(id int64) (*movie.Movie, error)
	}

	broadcaster struct {
		socketHub       *websocket.SocketHub
		pipelineService PipelineService
		store           broadcasterStore
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, pipelineService PipelineService, store broadcasterStore) *broadcaster {
	return &broadcaster{socketHub: socketHub, pipelineService: pipelineService, store: store}
}

// ConnectionPayload composes the initial state pushed to a websocket client
// when it connects: a snapshot of the pipeline queue, shaped the same way
// as the job update messages that follow.
func (hub *broadcaster) ConnectionPayload() map[string]interface{} {
	jobs := hub.pipelineService.Jobs()
	updates := make([]JobUpdate, 0, len(jobs))
	for _, job := range jobs {
		updates = append(updates, JobUpdate{MovieID: job.MovieID, Job: newJobActivity(job)})
	}

	return map[string]interface{}{"jobs": updates}
}

// BroadcastJobUpdate pushes the current state of a movie's pipeline job to
// every connected client. The job may legitimately be absent (completed
// runs are removed from the queue), in which case only the movie state is
// announced.
func (hub *broadcaster) BroadcastJobUpdate(movieID int64) error {
	update := JobUpdate{MovieID: movieID}

	if job, err := hub.pipelineService.Job(movieID); err == nil {
		update.Job = newJobActivity(job)
	} else if !errors.Is(err, pipeline.ErrJobNotFound) {
		return err
	}

	if item, err := hub.store.GetMovie(movieID); err == nil {
		update.Movie = &movieActivity{
			Title:        item.Title,
			HasThumbnail: item.HasThumbnail(),
			HasPlaylist:  item.HasPlaylist(),
		}
	}

	hub.broadcast(TitleJobUpdate, update)

	return nil
}

// BroadcastMovieUpdate announces a change to a movie row (creation or
// deletion) without any associated job state.
func (hub *broadcaster) BroadcastMovieUpdate(movieID int64) error {
	update := JobUpdate{MovieID: movieID}
	if item, err := hub.store.GetMovie(movieID); err == nil {
		update.Movie = &movieActivity{
			Title:        item.Title,
			HasThumbnail: item.HasThumbnail(),
			HasPlaylist:  item.HasPlaylist(),
		}
	}

	hub.broadcast(TitleMovieUpdate, update)

	return nil
}

func newJobActivity(job *pipeline.Job) *jobActivity {
	return &jobActivity{
		Status:          job.Status.String(),
		Attempts:        job.Attempts,
		RenditionsDone:  job.RenditionsDone,
		RenditionsTotal: job.RenditionsTotal,
	}
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
}
