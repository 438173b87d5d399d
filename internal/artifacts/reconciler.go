package artifacts

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/kinovod/kino/pkg/logger"
)

var log = logger.Get("Reconciler")

// Reconciler erases the on-disk footprint of a movie when its registry
// row is destroyed: the uploaded source file, the derived HLS tree, and
// the thumbnail. The registry itself never touches the filesystem.
type Reconciler struct {
	paths MediaPaths
}

func NewReconciler(paths MediaPaths) *Reconciler {
	return &Reconciler{paths: paths}
}

// OnDelete removes all three resource classes belonging to the movie. The
// removals are independent and best-effort: absence of one resource (or a
// removal failure, which is logged) never prevents removal of the others.
// Calling this for a movie whose pipeline never ran is a harmless no-op.
func (reconciler *Reconciler) OnDelete(movieID int64, sourcePath string) {
	reconciler.removeSource(movieID, sourcePath)
	reconciler.removeDerivedTree(movieID)
	reconciler.removeThumbnails(movieID)
}

func (reconciler *Reconciler) removeSource(movieID int64, sourcePath string) {
	if sourcePath == "" {
		return
	}

	if err := os.Remove(sourcePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}

		log.Emit(logger.WARNING, "Failed to remove source file %s for movie %d: %v\n", sourcePath, movieID, err)
		return
	}

	log.Emit(logger.REMOVE, "Removed source file %s for movie %d\n", sourcePath, movieID)
}

func (reconciler *Reconciler) removeDerivedTree(movieID int64) {
	dir := reconciler.paths.MovieDir(movieID)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return
	}

	if err := os.RemoveAll(dir); err != nil {
		log.Emit(logger.WARNING, "Failed to remove derived artifact tree %s for movie %d: %v\n", dir, movieID, err)
		return
	}

	log.Emit(logger.REMOVE, "Removed derived artifact tree %s for movie %d\n", dir, movieID)
}

func (reconciler *Reconciler) removeThumbnails(movieID int64) {
	matches, err := filepath.Glob(reconciler.paths.ThumbnailGlob(movieID))
	if err != nil {
		log.Emit(logger.WARNING, "Failed to glob thumbnails for movie %d: %v\n", movieID, err)
		return
	}

	for _, match := range matches {
		if err := os.Remove(match); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Emit(logger.WARNING, "Failed to remove thumbnail %s for movie %d: %v\n", match, movieID, err)
			continue
		}

		log.Emit(logger.REMOVE, "Removed thumbnail %s for movie %d\n", match, movieID)
	}
}
