package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kinovod/kino/internal/ffmpeg"
)

const masterPlaylistFilename = "master.m3u8"

// MasterPlaylistContent renders the top-level HLS master playlist for a
// movie, referencing the per-rendition playlists by their fixed relative
// paths. Targets are listed in ladder order.
func MasterPlaylistContent(targets []ffmpeg.Target) string {
	var content strings.Builder
	content.WriteString("#EXTM3U\n")
	content.WriteString("#EXT-X-VERSION:3\n")

	for _, target := range targets {
		content.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n",
			target.Bandwidth, target.Width, target.Height,
		))
		content.WriteString(filepath.Join(target.Label, ffmpeg.ManifestFilename) + "\n")
	}

	return content.String()
}

// WriteMasterPlaylist writes the master playlist for the movie to its
// deterministic path and returns that path.
func (paths MediaPaths) WriteMasterPlaylist(movieID int64, targets []ffmpeg.Target) (string, error) {
	path := paths.MasterPlaylistPath(movieID)
	if err := os.MkdirAll(filepath.Dir(path), os.ModeDir|os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create artifact directory for movie %d: %w", movieID, err)
	}

	if err := os.WriteFile(path, []byte(MasterPlaylistContent(targets)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write master playlist for movie %d: %w", movieID, err)
	}

	return path, nil
}
