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

var log = logger.Get("FFmpeg")

// Renditioner produces a single HLS rendition of a source file, scaled to
// a rendition target, by invoking the external encoder as a child process.
type Renditioner struct {
	config Config

	// EncodeTimeout is the wall-clock budget for one rendition encode. The
	// encoder is not preemptible mid-call, so the child process is killed
	// outright when the budget expires. Zero means unbounded.
	encodeTimeout time.Duration
}

func NewRenditioner(config Config, encodeTimeout time.Duration) *Renditioner {
	return &Renditioner{config: config, encodeTimeout: encodeTimeout}
}

// Render encodes the source at sourcePath in to a segmented HLS rendition
// inside outputDir (created if missing), returning the path of the written
// playlist manifest. When includeAudio is false, no audio codec argument is
// passed at all; a source with no audio track must never have an audio
// stream forced in to the output.
//
// Re-running for the same output directory overwrites prior output at the
// same deterministic paths.
func (r *Renditioner) Render(ctx context.Context, sourcePath string, outputDir string, target Target, includeAudio bool) (string, error) {
	if err := os.MkdirAll(outputDir, os.ModeDir|os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create rendition output directory %s: %w", outputDir, err)
	}

	if r.encodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.encodeTimeout)
		defer cancel()
	}

	manifestPath := filepath.Join(outputDir, ManifestFilename)
	opts := buildRenditionOptions(outputDir, target, includeAudio)

	log.Emit(logger.DEBUG, "Encoding rendition %s of %s -> %s\n", target.Label, sourcePath, manifestPath)

	transcoderInstance := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   r.config.FfmpegBinPath,
			FfprobeBinPath:  r.config.FfprobeBinPath,
		}).
		Input(sourcePath).
		Output(manifestPath).
		WithContext(&ctx)

	progressChannel, err := transcoderInstance.Start(opts)
	if err != nil {
		return "", newEncodingError("rendition", target.Label, err)
	}

	// Drain the progress channel; the encoder has finished when it closes.
	for range progressChannel {
	}

	if ctx.Err() != nil {
		return "", &EncodingError{
			Stage:  "rendition",
			Label:  target.Label,
			Output: fmt.Sprintf("encoder killed after exceeding wall-clock budget: %v", ctx.Err()),
			err:    ctx.Err(),
		}
	}

	// The transcoder discards the child's exit status once progress
	// reporting begins, so a crash after a clean start would otherwise pass
	// as success. Check the exit state and the manifest it should have
	// written ourselves.
	if cmd := transcoderInstance.GetRunningCmdInstance(); cmd != nil && cmd.ProcessState != nil && !cmd.ProcessState.Success() {
		return "", &EncodingError{
			Stage:  "rendition",
			Label:  target.Label,
			Output: fmt.Sprintf("encoder exited abnormally (%v)", cmd.ProcessState),
		}
	}
	if _, statErr := os.Stat(manifestPath); statErr != nil {
		return "", &EncodingError{
			Stage:  "rendition",
			Label:  target.Label,
			Output: fmt.Sprintf("encoder exited without writing the playlist manifest: %v", statErr),
			err:    statErr,
		}
	}

	log.Emit(logger.SUCCESS, "Rendition %s complete (%s)\n", target.Label, manifestPath)
	return manifestPath, nil
}

// buildRenditionOptions composes the encoder argument list for one HLS
// rendition. The playlist is unbounded (hls_list_size 0) so every segment
// stays listed rather than forming a sliding window.
func buildRenditionOptions(outputDir string, target Target, includeAudio bool) ffmpeg.Options {
	videoCodec := VideoCodec
	resolution := target.Resolution()
	outputFormat := "hls"
	segmentDuration := SegmentDurationSecs
	playlistType := "vod"
	listSize := 0
	segmentFilename := filepath.Join(outputDir, SegmentFilePattern)
	overwrite := true

	opts := ffmpeg.Options{
		VideoCodec:         &videoCodec,
		Resolution:         &resolution,
		OutputFormat:       &outputFormat,
		HlsSegmentDuration: &segmentDuration,
		HlsPlaylistType:    &playlistType,
		HlsListSize:        &listSize,
		HlsSegmentFilename: &segmentFilename,
		Overwrite:          &overwrite,
	}

	if includeAudio {
		audioCodec := AudioCodec
		opts.AudioCodec = &audioCodec
	}

	return opts
}
