package movie

import (
	"fmt"
	"time"
)

type (
	// Movie is the durable record of one uploaded content item. The
	// thumbnail and playlist paths start out unset; the pipeline is the
	// only writer of those two fields, and each becomes set exactly once
	// per successful run.
	Movie struct {
		ID            int64     `db:"id"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`
		Title         string    `db:"title"`
		Description   string    `db:"description"`
		CategoryID    int64     `db:"category_id"`
		SourcePath    string    `db:"source_path"`
		ThumbnailPath *string   `db:"thumbnail_path"`
		PlaylistPath  *string   `db:"playlist_path"`
	}

	Category struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}

	// MovieListResult is a movie row joined with the name of it's
	// category, as returned by the list query.
	MovieListResult struct {
		Movie
		CategoryName string `db:"category_name"`
	}
)

// HasThumbnail reports whether the thumbnail reference has been set; the
// pipeline uses this to make thumbnail extraction idempotent-by-skip.
func (movie *Movie) HasThumbnail() bool {
	return movie.ThumbnailPath != nil && *movie.ThumbnailPath != ""
}

func (movie *Movie) HasPlaylist() bool {
	return movie.PlaylistPath != nil && *movie.PlaylistPath != ""
}

// MissingRequiredFields returns the names of any required fields which are
// absent. A movie with any missing required field must never enter the
// transcoding pipeline.
func (movie *Movie) MissingRequiredFields() []string {
	missing := make([]string, 0)
	if movie.Title == "" {
		missing = append(missing, "title")
	}
	if movie.Description == "" {
		missing = append(missing, "description")
	}
	if movie.CategoryID == 0 {
		missing = append(missing, "category")
	}
	if movie.SourcePath == "" {
		missing = append(missing, "source_path")
	}

	return missing
}

func (movie *Movie) String() string {
	return fmt.Sprintf("Movie{ID=%d Title=%q}", movie.ID, movie.Title)
}
