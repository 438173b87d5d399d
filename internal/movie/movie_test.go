package movie_test

import (
	"testing"

	"github.com/kinovod/kino/internal/movie"
	"github.com/stretchr/testify/assert"
)

func validMovie() movie.Movie {
	return movie.Movie{
		ID:          1,
		Title:       "Some Film",
		Description: "...",
		CategoryID:  2,
		SourcePath:  "/media/videos/originals/some-film.mp4",
	}
}

func Test_MissingRequiredFields_CompleteMovie(t *testing.T) {
	t.Parallel()
	m := validMovie()
	assert.Empty(t, m.MissingRequiredFields())
}

func Test_MissingRequiredFields_ReportsEachAbsentField(t *testing.T) {
	t.Parallel()

	m := validMovie()
	m.Title = ""
	m.SourcePath = ""
	assert.ElementsMatch(t, []string{"title", "source_path"}, m.MissingRequiredFields())

	empty := movie.Movie{}
	assert.ElementsMatch(t, []string{"title", "description", "category", "source_path"}, empty.MissingRequiredFields())
}

func Test_ArtifactPresence_TreatsEmptyStringAsUnset(t *testing.T) {
	t.Parallel()

	m := validMovie()
	assert.False(t, m.HasThumbnail())
	assert.False(t, m.HasPlaylist())

	blank := ""
	m.ThumbnailPath = &blank
	m.PlaylistPath = &blank
	assert.False(t, m.HasThumbnail())
	assert.False(t, m.HasPlaylist())

	thumb := "/media/thumbnails/1_thumb.jpg"
	playlist := "/media/videos/hls/1/master.m3u8"
	m.ThumbnailPath = &thumb
	m.PlaylistPath = &playlist
	assert.True(t, m.HasThumbnail())
	assert.True(t, m.HasPlaylist())
}
