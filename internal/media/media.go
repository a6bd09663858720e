package media

import (
	"context"
	"errors"
	"fmt"
)

// Clip is one finite recorded blob covering a single answer attempt. It is
// produced by Capture.Stop and consumed by the transcription client; the
// orchestrator discards it once the final submission resolves.
type Clip struct {
	Data     []byte
	MimeType string
}

// Constraints describe the PCM format a capture source must deliver.
type Constraints struct {
	SampleRate int
	Channels   int
}

// Stream is a live byte stream from an acquired device or ingest endpoint.
// Chunks is closed by Release. Release must stop the underlying tracks and
// is idempotent.
type Stream interface {
	Chunks() <-chan []byte
	Release()
}

// Source hands out exclusive streams. Acquire fails with a *DeviceError
// when no device is available or permission is denied.
type Source interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

var (
	// ErrAlreadyRecording is returned when Start is called while a
	// recording is active. Callers must stop the active one first.
	ErrAlreadyRecording = errors.New("media: recording already in progress")

	// ErrEmptyClip is returned by Stop when zero bytes were captured.
	ErrEmptyClip = errors.New("media: empty clip")

	// ErrNotRecording is returned by Stop without a matching Start.
	ErrNotRecording = errors.New("media: no active recording")
)

// DeviceError wraps permission or hardware failures during acquisition.
type DeviceError struct {
	Cause error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("media: device unavailable: %v", e.Cause)
}

func (e *DeviceError) Unwrap() error { return e.Cause }
