package ffmpeg

import (
	"fmt"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
)

// Prober inspects source media files using ffprobe to determine their
// stream composition ahead of encoding.
type Prober struct {
	config Config
}

func NewProber(config Config) *Prober {
	return &Prober{config: config}
}

// HasAudioStream reports whether the file at the path provided carries at
// least one audio stream. A readable file with zero audio streams is NOT
// an error; an unreadable file, or a probe tool failure, is.
func (prober *Prober) HasAudioStream(path string) (bool, error) {
	metadata, err := prober.probeFile(path)
	if err != nil {
		return false, err
	}

	for _, stream := range metadata.GetStreams() {
		if stream.GetCodecType() == "audio" {
			return true, nil
		}
	}

	return false, nil
}

func (prober *Prober) probeFile(path string) (transcoder.Metadata, error) {
	cfg := ffmpeg.Config{
		FfmpegBinPath:  prober.config.FfmpegBinPath,
		FfprobeBinPath: prober.config.FfprobeBinPath,
	}

	metadata, err := ffmpeg.New(&cfg).Input(path).GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to extract file metadata information using ffprobe: %w", err)
	}

	return metadata, nil
}
