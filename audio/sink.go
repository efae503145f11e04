package audio

import (
	"sync"
	"time"
)

// Sink is the hardware audio output boundary: a mono 16-bit fixed-rate
// stream. The engine writes whole PCM buffers; the sink invokes the drain
// callback from its playback context once previously written audio has
// been consumed, which is the signal that drives the render tick.
//
// Implementations copy the data passed to Write, since the engine reuses
// its ping-pong buffers.
type Sink interface {
	Write(pcm []int16) (int, error)
	SetDrainFunc(func())
	Start() error
	Close() error
}

// NullSink discards audio while pacing drain callbacks at the real-time
// rate, for running without an audio device.
type NullSink struct {
	interval time.Duration

	mu      sync.Mutex
	drain   func()
	started bool
	done    chan struct{}
}

func NewNullSink(sampleRate, bufferSamples int) *NullSink {
	return &NullSink{
		interval: time.Duration(bufferSamples) * time.Second / time.Duration(sampleRate),
	}
}

func (s *NullSink) Write(pcm []int16) (int, error) { return len(pcm), nil }

func (s *NullSink) SetDrainFunc(fn func()) {
	s.mu.Lock()
	s.drain = fn
	s.mu.Unlock()
}

func (s *NullSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.done = make(chan struct{})
	go s.run(s.done)
	return nil
}

func (s *NullSink) run(done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			drain := s.drain
			s.mu.Unlock()
			if drain != nil {
				drain()
			}
		}
	}
}

func (s *NullSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		close(s.done)
		s.started = false
	}
	return nil
}
