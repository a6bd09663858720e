package media

import (
	"context"
	"sync"
)

// IngestSource adapts chunks pushed by the presentation layer (websocket
// binary frames) into the Source/Stream contract. One stream is live at a
// time; Push drops chunks while no recording is active, mirroring a muted
// device.
type IngestSource struct {
	mu     sync.Mutex
	active *ingestStream
}

func NewIngestSource() *IngestSource {
	return &IngestSource{}
}

func (s *IngestSource) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	st := &ingestStream{ch: make(chan []byte, 64), parent: s}
	s.mu.Lock()
	old := s.active
	s.active = st
	s.mu.Unlock()
	if old != nil {
		old.Release()
	}
	return st, nil
}

// Push forwards a chunk to the live stream, if any. A full stream buffer
// drops the chunk rather than blocking the network reader.
func (s *IngestSource) Push(data []byte) {
	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	if st == nil {
		return
	}
	st.push(data)
}

// Close releases the live stream, if any.
func (s *IngestSource) Close() {
	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	if st != nil {
		st.Release()
	}
}

type ingestStream struct {
	mu       sync.Mutex
	ch       chan []byte
	released bool
	parent   *IngestSource
}

func (st *ingestStream) Chunks() <-chan []byte { return st.ch }

func (st *ingestStream) push(data []byte) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.released {
		return
	}
	select {
	case st.ch <- data:
	default:
	}
}

func (st *ingestStream) Release() {
	st.mu.Lock()
	if st.released {
		st.mu.Unlock()
		return
	}
	st.released = true
	close(st.ch)
	st.mu.Unlock()

	st.parent.mu.Lock()
	if st.parent.active == st {
		st.parent.active = nil
	}
	st.parent.mu.Unlock()
}
