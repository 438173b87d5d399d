package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kinovod/kino/tests/helpers"
	"github.com/stretchr/testify/assert"
)

// stubEncoderBinaries stands in ffprobe and ffmpeg binaries: the probe
// reports a single video stream, and the encoder prints a diagnostic and
// exits non-zero without writing any output.
func stubEncoderBinaries(t *testing.T) Config {
	_, stubs := helpers.TempDirWithExecutables(t, map[string]string{
		"ffprobe": "#!/bin/sh\necho '{\"streams\":[{\"codec_type\":\"video\"}],\"format\":{\"duration\":\"1.0\"}}'\n",
		"ffmpeg":  "#!/bin/sh\necho 'Invalid data found when processing input' 1>&2\nexit 1\n",
	})

	return Config{FfmpegBinPath: stubs["ffmpeg"], FfprobeBinPath: stubs["ffprobe"]}
}

func Test_RenditionLadder_IsOrderedAndFixed(t *testing.T) {
	t.Parallel()
	ladder := RenditionLadder()

	assert.Len(t, ladder, 3)
	assert.Equal(t, "480p", ladder[0].Label)
	assert.Equal(t, "854x480", ladder[0].Resolution())
	assert.Equal(t, "720p", ladder[1].Label)
	assert.Equal(t, "1280x720", ladder[1].Resolution())
	assert.Equal(t, "1080p", ladder[2].Label)
	assert.Equal(t, "1920x1080", ladder[2].Resolution())
}

func Test_RenditionOptions_WithAudio(t *testing.T) {
	t.Parallel()
	target := RenditionLadder()[1]
	opts := buildRenditionOptions("/out/42/720p", target, true)

	assert.Equal(t, VideoCodec, *opts.VideoCodec)
	assert.Equal(t, "1280x720", *opts.Resolution)
	assert.Equal(t, "hls", *opts.OutputFormat)
	assert.Equal(t, SegmentDurationSecs, *opts.HlsSegmentDuration)
	assert.Equal(t, "vod", *opts.HlsPlaylistType)
	assert.Equal(t, 0, *opts.HlsListSize)
	assert.Equal(t, filepath.Join("/out/42/720p", SegmentFilePattern), *opts.HlsSegmentFilename)
	assert.True(t, *opts.Overwrite)

	assert.NotNil(t, opts.AudioCodec)
	assert.Equal(t, AudioCodec, *opts.AudioCodec)
}

// A source with no audio track must have no audio codec argument at all,
// rather than an explicit 'none' or a forced silent stream.
func Test_RenditionOptions_SilentSourceOmitsAudioCodec(t *testing.T) {
	t.Parallel()
	opts := buildRenditionOptions("/out/42/480p", RenditionLadder()[0], false)

	assert.Nil(t, opts.AudioCodec)
	assert.NotNil(t, opts.VideoCodec)
}

func Test_ParseFfmpegError_ExtractsEmbeddedMessage(t *testing.T) {
	t.Parallel()

	raw := errors.New(`failed with compile details... message: {"error": {"string": "No such file or directory"}}`)
	parsed := parseFfmpegError(raw)
	assert.Equal(t, "No such file or directory", parsed.Error())
}

func Test_ParseFfmpegError_FallsBackToRawError(t *testing.T) {
	t.Parallel()

	raw := errors.New("plain failure with no embedded message")
	parsed := parseFfmpegError(raw)
	assert.Equal(t, raw, parsed)
}

func Test_EncodingError_FormatsStageAndLabel(t *testing.T) {
	t.Parallel()

	inner := errors.New("boom")
	err := newEncodingError("rendition", "720p", inner)
	assert.Contains(t, err.Error(), "rendition")
	assert.Contains(t, err.Error(), "720p")
	assert.ErrorIs(t, err, inner)
}

// A non-zero encoder exit after a clean start is only observable through
// the child's exit state; it must surface as an EncodingError rather than
// a phantom success with no playlist on disk.
func Test_Render_EncoderNonZeroExit_ReturnsEncodingError(t *testing.T) {
	t.Parallel()

	_, sources := helpers.TempDirWithFiles(t, []string{"source.mp4"})
	config := stubEncoderBinaries(t)
	outputDir := filepath.Join(t.TempDir(), "480p")

	manifestPath, err := NewRenditioner(config, time.Second*10).
		Render(context.Background(), sources[0], outputDir, RenditionLadder()[0], true)

	var encodingErr *EncodingError
	assert.ErrorAs(t, err, &encodingErr)
	assert.Empty(t, manifestPath)

	_, statErr := os.Stat(filepath.Join(outputDir, ManifestFilename))
	assert.True(t, os.IsNotExist(statErr))
}

func Test_Generate_EncoderNonZeroExit_ReturnsEncodingError(t *testing.T) {
	t.Parallel()

	_, sources := helpers.TempDirWithFiles(t, []string{"source.mp4"})
	config := stubEncoderBinaries(t)
	outputPath := filepath.Join(t.TempDir(), "9_thumb.jpg")

	err := NewThumbnailer(config, time.Second*10).Generate(context.Background(), sources[0], outputPath)

	var encodingErr *EncodingError
	assert.ErrorAs(t, err, &encodingErr)

	_, statErr := os.Stat(outputPath)
	assert.True(t, os.IsNotExist(statErr))
}
