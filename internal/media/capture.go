package media

import (
	"context"
	"log"
	"sync"
	"time"
)

// Capture owns the single hardware stream for one interview session and
// records it into finite clips on demand. At most one recording is active
// at a time; a second Start is rejected rather than queued.
type Capture struct {
	source Source
	format Constraints
	logger *log.Logger

	mu        sync.Mutex
	stream    Stream
	recording bool
	startTime time.Time
	buf       []byte
	collected chan struct{}

	// clock is injectable for testing; defaults to time.Now.
	clock func() time.Time
}

func NewCapture(source Source, format Constraints, logger *log.Logger) *Capture {
	if logger == nil {
		logger = log.New(log.Writer(), "[MEDIA] ", log.LstdFlags)
	}
	return &Capture{
		source: source,
		format: format,
		logger: logger,
		clock:  time.Now,
	}
}

// Start acquires a stream from the source and begins collecting bytes.
// Fails with *DeviceError when acquisition fails and ErrAlreadyRecording
// when a recording is active.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.recording = true
	c.buf = nil
	c.startTime = c.clock()
	c.mu.Unlock()

	stream, err := c.source.Acquire(ctx, c.format)
	if err != nil {
		c.mu.Lock()
		c.recording = false
		c.mu.Unlock()
		if _, ok := err.(*DeviceError); ok {
			return err
		}
		return &DeviceError{Cause: err}
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.stream = stream
	c.collected = done
	c.mu.Unlock()

	go c.collect(stream, done)
	return nil
}

// collect drains the stream until Release closes the chunk channel. Chunks
// are copied before buffering so the producer may reuse its slices.
func (c *Capture) collect(stream Stream, done chan struct{}) {
	defer close(done)
	for data := range stream.Chunks() {
		if len(data) == 0 {
			continue
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		c.mu.Lock()
		c.buf = append(c.buf, buf...)
		c.mu.Unlock()
	}
}

// Stop halts the byte stream, releases the underlying tracks and renders
// the collected PCM into a WAV clip. Fails with ErrEmptyClip when nothing
// was captured; the tracks are released either way.
func (c *Capture) Stop() (Clip, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return Clip{}, ErrNotRecording
	}
	stream := c.stream
	done := c.collected
	c.recording = false
	c.stream = nil
	started := c.startTime
	c.mu.Unlock()

	// Release closes the chunk channel; wait for the collector to drain
	// what was already queued.
	stream.Release()
	<-done

	c.mu.Lock()
	pcm := c.buf
	c.buf = nil
	c.mu.Unlock()

	if len(pcm) == 0 {
		return Clip{}, ErrEmptyClip
	}

	c.logger.Printf("captured %d bytes (%.2fs)", len(pcm), c.clock().Sub(started).Seconds())
	return Clip{Data: renderWAV(pcm, c.format), MimeType: "audio/wav"}, nil
}

// Release tears down any active recording without producing a clip. Used
// on session teardown and timeout; idempotent.
func (c *Capture) Release() {
	c.mu.Lock()
	stream := c.stream
	done := c.collected
	c.recording = false
	c.stream = nil
	c.buf = nil
	c.mu.Unlock()

	if stream != nil {
		stream.Release()
		<-done
	}
}

// Recording reports whether a recording is currently active.
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}
