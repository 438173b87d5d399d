package ffmpeg

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

const (
	// ManifestFilename is the playlist name used for every rendition; the
	// serving layer derives stream URLs from this fixed name.
	ManifestFilename = "index.m3u8"

	// SegmentFilePattern is the printf-style pattern handed to the encoder
	// for segment output. Zero padding keeps re-runs reproducible and the
	// directory listing sortable.
	SegmentFilePattern = "segment_%03d.ts"

	SegmentDurationSecs = 10

	VideoCodec = "libx264"
	AudioCodec = "aac"
)

type Config struct {
	FfmpegBinPath  string `yaml:"ffmpeg_binary" env:"FFMPEG_BINARY" env-default:"ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe_binary" env:"FFPROBE_BINARY" env-default:"ffprobe"`
}

// Target is a single rung of the rendition ladder: a labelled output
// resolution, plus the approximate bandwidth advertised for it in the
// master playlist.
type Target struct {
	Label     string
	Width     int
	Height    int
	Bandwidth int
}

func (t Target) Resolution() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

func (t Target) String() string {
	return fmt.Sprintf("Target{%s %s}", t.Label, t.Resolution())
}

// RenditionLadder is the fixed, ordered set of rendition targets every
// movie is encoded to. Order determines processing sequence only.
func RenditionLadder() []Target {
	return []Target{
		{Label: "480p", Width: 854, Height: 480, Bandwidth: 1_400_000},
		{Label: "720p", Width: 1280, Height: 720, Bandwidth: 2_800_000},
		{Label: "1080p", Width: 1920, Height: 1080, Bandwidth: 5_000_000},
	}
}

// EncodingError indicates a non-zero exit (or forced kill) of the external
// encoder. Output carries the tool's diagnostic output, trimmed down to the
// useful message where possible.
type EncodingError struct {
	Stage  string
	Label  string
	Output string
	err    error
}

func (e *EncodingError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("encoding failure during %s (%s): %s", e.Stage, e.Label, e.Output)
	}

	return fmt.Sprintf("encoding failure during %s: %s", e.Stage, e.Output)
}

func (e *EncodingError) Unwrap() error { return e.err }

func newEncodingError(stage string, label string, err error) *EncodingError {
	parsed := parseFfmpegError(err)
	return &EncodingError{Stage: stage, Label: label, Output: parsed.Error(), err: err}
}

// parseFfmpegError tries to pick out the relevant information from the HUGE
// output log from ffmpeg. The error we get contains lots of information
// about how the binary was compiled... this is useless info, we just
// want the 'message' JSON that is encoded inside.
func parseFfmpegError(err error) error {
	messageMatcher := regexp.MustCompile(`(?s)message: ({.*})`)
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	var out map[string]interface{}
	jsonErr := json.Unmarshal([]byte(groups[1]), &out)
	if jsonErr != nil {
		// We failed to extract the info.. just use the entire string as our error
		return errors.New(groups[1])
	}

	if ffmpegException, ok := out["error"].(map[string]interface{}); ok {
		if str, ok := ffmpegException["string"].(string); ok {
			return errors.New(str)
		}
	}

	return errors.New(groups[1])
}
