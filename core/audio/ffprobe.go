package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"gopkg.in/vansante/go-ffprobe.v2"
)

// ErrNoDuration is returned when the ffprobe output carries no usable duration.
var ErrNoDuration = errors.New("audio duration not found")

// FFprobe extracts metadata from raw audio bytes by piping them into ffprobe.
type FFprobe struct {
	path string
}

// NewFFprobe creates a duration reader using the ffprobe binary at path.
// The path is package state in go-ffprobe, so the latest reader created wins.
func NewFFprobe(path string) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	ffprobe.SetFFProbeBinPath(path)
	return &FFprobe{path: path}
}

// Duration returns the duration of the audio in seconds.
func (p *FFprobe) Duration(ctx context.Context, data []byte) (float64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty audio payload: %w", ErrNoDuration)
	}

	info, err := ffprobe.ProbeReader(ctx, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%s execution failed: %w", p.path, err)
	}
	return formatDuration(info)
}

func formatDuration(info *ffprobe.ProbeData) (float64, error) {
	if info == nil || info.Format == nil {
		return 0, ErrNoDuration
	}
	duration := info.Format.DurationSeconds
	if duration < 0 {
		return 0, ErrNoDuration
	}
	return duration, nil
}
