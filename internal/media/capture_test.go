package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func testFormat() Constraints {
	return Constraints{SampleRate: 44100, Channels: 1}
}

func TestCaptureRecordsPushedChunks(t *testing.T) {
	src := NewIngestSource()
	cap := NewCapture(src, testFormat(), nil)

	if err := cap.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.Push([]byte{1, 2, 3, 4})
	src.Push([]byte{5, 6})

	waitForBytes(t, cap, 6)

	clip, err := cap.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if clip.MimeType != "audio/wav" {
		t.Fatalf("unexpected mime type %q", clip.MimeType)
	}
	if !bytes.HasPrefix(clip.Data, []byte("RIFF")) {
		t.Fatalf("expected RIFF header")
	}
	payload := clip.Data[44:]
	if !bytes.Equal(payload, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("unexpected payload %v", payload)
	}
	var dataLen uint32
	if err := binary.Read(bytes.NewReader(clip.Data[40:44]), binary.LittleEndian, &dataLen); err != nil {
		t.Fatalf("reading data length: %v", err)
	}
	if dataLen != 6 {
		t.Fatalf("expected data length 6, got %d", dataLen)
	}
}

func TestCaptureRejectsSecondStart(t *testing.T) {
	src := NewIngestSource()
	cap := NewCapture(src, testFormat(), nil)

	if err := cap.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := cap.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	cap.Release()
}

func TestCaptureEmptyClip(t *testing.T) {
	src := NewIngestSource()
	cap := NewCapture(src, testFormat(), nil)

	if err := cap.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := cap.Stop(); !errors.Is(err, ErrEmptyClip) {
		t.Fatalf("expected ErrEmptyClip, got %v", err)
	}
	if cap.Recording() {
		t.Fatalf("expected recording stopped after empty clip")
	}
}

func TestCaptureStopWithoutStart(t *testing.T) {
	cap := NewCapture(NewIngestSource(), testFormat(), nil)
	if _, err := cap.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestCaptureReleaseDiscardsBytes(t *testing.T) {
	src := NewIngestSource()
	cap := NewCapture(src, testFormat(), nil)

	if err := cap.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.Push([]byte{9, 9, 9})
	waitForBytes(t, cap, 3)
	cap.Release()
	cap.Release() // idempotent

	if cap.Recording() {
		t.Fatalf("expected recording torn down")
	}
	// a fresh recording starts from an empty buffer
	if err := cap.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	src.Push([]byte{1, 2})
	waitForBytes(t, cap, 2)
	clip, err := cap.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !bytes.Equal(clip.Data[44:], []byte{1, 2}) {
		t.Fatalf("expected only fresh bytes, got %v", clip.Data[44:])
	}
}

func TestIngestDropsChunksWhenIdle(t *testing.T) {
	src := NewIngestSource()
	src.Push([]byte{1}) // no live stream; must not panic

	stream, err := src.Acquire(context.Background(), testFormat())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	stream.Release()
	stream.Release() // idempotent
	src.Push([]byte{2})
}

func waitForBytes(t *testing.T, c *Capture, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.buf)
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d captured bytes", n)
}
