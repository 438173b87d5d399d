package artifacts

import (
	"fmt"
	"path/filepath"

	"github.com/kinovod/kino/internal/ffmpeg"
)

// MediaPaths is the single source of truth for the on-disk layout of the
// media root. Every path is re-derivable from a movie ID (plus rendition
// label), which is what makes pipeline re-runs overwrite rather than
// accumulate, and what lets the reconciler erase artifacts without any
// bookkeeping beyond the ID itself.
//
// Layout:
//
//	{root}/videos/originals/<uploaded-filename>
//	{root}/videos/hls/<id>/master.m3u8
//	{root}/videos/hls/<id>/<label>/index.m3u8
//	{root}/videos/hls/<id>/<label>/segment_<NNN>.ts
//	{root}/thumbnails/<id>_thumb.jpg
type MediaPaths struct {
	root string
}

func NewMediaPaths(root string) MediaPaths {
	return MediaPaths{root: root}
}

func (paths MediaPaths) Root() string { return paths.root }

func (paths MediaPaths) OriginalsDir() string {
	return filepath.Join(paths.root, "videos", "originals")
}

func (paths MediaPaths) OriginalPath(filename string) string {
	return filepath.Join(paths.OriginalsDir(), filename)
}

func (paths MediaPaths) HLSDir() string {
	return filepath.Join(paths.root, "videos", "hls")
}

// MovieDir is the base directory holding every derived artifact for one
// movie. Directory-namespace isolation per movie ID is the concurrency
// boundary for the whole pipeline.
func (paths MediaPaths) MovieDir(movieID int64) string {
	return filepath.Join(paths.HLSDir(), fmt.Sprint(movieID))
}

func (paths MediaPaths) RenditionDir(movieID int64, label string) string {
	return filepath.Join(paths.MovieDir(movieID), label)
}

func (paths MediaPaths) ManifestPath(movieID int64, label string) string {
	return filepath.Join(paths.RenditionDir(movieID, label), ffmpeg.ManifestFilename)
}

func (paths MediaPaths) MasterPlaylistPath(movieID int64) string {
	return filepath.Join(paths.MovieDir(movieID), masterPlaylistFilename)
}

func (paths MediaPaths) ThumbnailDir() string {
	return filepath.Join(paths.root, "thumbnails")
}

func (paths MediaPaths) ThumbnailPath(movieID int64) string {
	return filepath.Join(paths.ThumbnailDir(), fmt.Sprintf("%d_thumb.jpg", movieID))
}

// ThumbnailGlob matches any thumbnail for the movie regardless of image
// extension; historical uploads carried .jpeg/.png thumbnails too.
func (paths MediaPaths) ThumbnailGlob(movieID int64) string {
	return filepath.Join(paths.ThumbnailDir(), fmt.Sprintf("%d_thumb*", movieID))
}
