package receiver

import "sync"

// frameSlot holds the latest decoded frame together with a strictly
// increasing identifier. One writer (the receiver's consumer loop), any
// number of readers; readers always get independent copies.
type frameSlot struct {
	mu    sync.Mutex
	frame *Frame
	id    uint64
}

// store replaces the current frame and returns the new identifier
func (s *frameSlot) store(f *Frame) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = f
	s.id++
	return s.id
}

// snapshot returns a copy of the current frame and its identifier. The frame
// is nil and the identifier zero before the first store.
func (s *frameSlot) snapshot() (*Frame, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, s.id
	}
	return s.frame.Clone(), s.id
}

// currentID returns the latest identifier without copying pixel data
func (s *frameSlot) currentID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
