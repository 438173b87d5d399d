package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/kinovod/kino/pkg/logger"
)

const (
	// thumbnailSeekTime is where in the source the representative frame is
	// taken from. One second avoids black lead-in frames.
	thumbnailSeekTime = "00:00:01"

	thumbnailQuality = 2
)

// Thumbnailer extracts a single representative still frame from a source
// video using the external encoder.
type Thumbnailer struct {
	config        Config
	encodeTimeout time.Duration
}

func NewThumbnailer(config Config, encodeTimeout time.Duration) *Thumbnailer {
	return &Thumbnailer{config: config, encodeTimeout: encodeTimeout}
}

// Generate seeks one second in to the source and writes exactly one frame
// to outputPath (parent directory created if missing).
func (t *Thumbnailer) Generate(ctx context.Context, sourcePath string, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModeDir|os.ModePerm); err != nil {
		return fmt.Errorf("failed to create thumbnail directory for %s: %w", outputPath, err)
	}

	if t.encodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.encodeTimeout)
		defer cancel()
	}

	seekTime := thumbnailSeekTime
	overwrite := true
	opts := ffmpeg.Options{
		SeekTime:  &seekTime,
		Overwrite: &overwrite,
		ExtraArgs: map[string]interface{}{
			"-frames:v": 1,
			"-q:v":      thumbnailQuality,
		},
	}

	log.Emit(logger.DEBUG, "Extracting thumbnail frame of %s -> %s\n", sourcePath, outputPath)

	transcoderInstance := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   t.config.FfmpegBinPath,
			FfprobeBinPath:  t.config.FfprobeBinPath,
		}).
		Input(sourcePath).
		Output(outputPath).
		WithContext(&ctx)

	progressChannel, err := transcoderInstance.Start(opts)
	if err != nil {
		return newEncodingError("thumbnail", "", err)
	}

	for range progressChannel {
	}

	if ctx.Err() != nil {
		return &EncodingError{
			Stage:  "thumbnail",
			Output: fmt.Sprintf("encoder killed after exceeding wall-clock budget: %v", ctx.Err()),
			err:    ctx.Err(),
		}
	}

	// As with renditions, the exit status of the child is lost to the
	// progress reporting; verify it before declaring the frame written.
	if cmd := transcoderInstance.GetRunningCmdInstance(); cmd != nil && cmd.ProcessState != nil && !cmd.ProcessState.Success() {
		return &EncodingError{
			Stage:  "thumbnail",
			Output: fmt.Sprintf("encoder exited abnormally (%v)", cmd.ProcessState),
		}
	}
	if _, statErr := os.Stat(outputPath); statErr != nil {
		return &EncodingError{
			Stage:  "thumbnail",
			Output: fmt.Sprintf("encoder exited without writing the frame: %v", statErr),
			err:    statErr,
		}
	}

	return nil
}
