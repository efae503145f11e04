package audio

import (
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSink plays the engine's output through the default host device.
// The portaudio callback consumes queued PCM and fires the drain callback
// when the queue runs dry, playing the role of a DAC "buffer consumed"
// interrupt.
type PortAudioSink struct {
	stream *portaudio.Stream

	mu      sync.Mutex
	drain   func()
	queued  []int16
	started bool
}

func NewPortAudioSink(sampleRate, bufferSamples int) (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	s := &PortAudioSink{}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), bufferSamples, s.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	s.stream = stream
	return s, nil
}

func (s *PortAudioSink) Write(pcm []int16) (int, error) {
	s.mu.Lock()
	s.queued = append(s.queued, pcm...)
	s.mu.Unlock()
	return len(pcm), nil
}

func (s *PortAudioSink) SetDrainFunc(fn func()) {
	s.mu.Lock()
	s.drain = fn
	s.mu.Unlock()
}

func (s *PortAudioSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	return s.stream.Start()
}

func (s *PortAudioSink) callback(out []int16) {
	s.mu.Lock()
	n := copy(out, s.queued)
	s.queued = append(s.queued[:0], s.queued[n:]...)
	empty := len(s.queued) == 0
	drain := s.drain
	s.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	// The drain callback runs outside the lock: it calls back into Write.
	if empty && drain != nil {
		drain()
	}
}

func (s *PortAudioSink) Close() error {
	s.stream.Close()
	portaudio.Terminate()
	return nil
}
