package movies

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kinovod/kino/internal/movie"
	"github.com/kinovod/kino/internal/pipeline"
)

type (
	Dto struct {
		ID           int64     `json:"id"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
		Title        string    `json:"title"`
		Description  string    `json:"description"`
		CategoryID   int64     `json:"category_id"`
		CategoryName string    `json:"category_name,omitempty"`
		Ready        bool      `json:"ready"`
		WatchURL     *string   `json:"watch_url"`
		ThumbnailURL *string   `json:"thumbnail_url"`
	}

	JobDto struct {
		ID              uuid.UUID `json:"id"`
		MovieID         int64     `json:"movie_id"`
		Status          string    `json:"status"`
		Attempts        int       `json:"attempts"`
		RenditionsDone  int       `json:"renditions_done"`
		RenditionsTotal int       `json:"renditions_total"`
		LastError       string    `json:"last_error,omitempty"`
	}
)

// newDto maps a registry row to its public representation. Artifact
// locations are exposed as media URLs rather than filesystem paths; the
// gateway serves the media directory under /media.
func newDto(m *movie.Movie) Dto {
	dto := Dto{
		ID:          m.ID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		Title:       m.Title,
		Description: m.Description,
		CategoryID:  m.CategoryID,
		Ready:       m.HasPlaylist(),
	}

	if m.HasPlaylist() {
		url := fmt.Sprintf("/media/hls/%d/master.m3u8", m.ID)
		dto.WatchURL = &url
	}
	if m.HasThumbnail() {
		url := fmt.Sprintf("/media/thumbnails/%d_thumb.jpg", m.ID)
		dto.ThumbnailURL = &url
	}

	return dto
}

func newListDtos(results []*movie.MovieListResult) []Dto {
	dtos := make([]Dto, len(results))
	for i, result := range results {
		dto := newDto(&result.Movie)
		dto.CategoryName = result.CategoryName
		dtos[i] = dto
	}

	return dtos
}

func newJobDto(job *pipeline.Job) JobDto {
	return JobDto{
		ID:              job.ID,
		MovieID:         job.MovieID,
		Status:          job.Status.String(),
		Attempts:        job.Attempts,
		RenditionsDone:  job.RenditionsDone,
		RenditionsTotal: job.RenditionsTotal,
		LastError:       job.LastError,
	}
}
