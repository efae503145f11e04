package audio

import (
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoSink plays through an oto mono 16-bit stream. oto pulls bytes through
// an io.Reader, so the sink hands out queued PCM, pads silence when the
// engine has nothing ready, and fires the drain callback once the queue is
// consumed.
type OtoSink struct {
	ctx    *oto.Context
	player *oto.Player

	mu      sync.Mutex
	drain   func()
	queued  []byte
	started bool
}

func NewOtoSink(sampleRate, bufferSamples int) (*OtoSink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready
	s := &OtoSink{ctx: ctx}
	s.player = ctx.NewPlayer(s)
	return s, nil
}

func (s *OtoSink) Write(pcm []int16) (int, error) {
	s.mu.Lock()
	for _, v := range pcm {
		s.queued = append(s.queued, byte(v), byte(uint16(v)>>8))
	}
	s.mu.Unlock()
	return len(pcm), nil
}

func (s *OtoSink) SetDrainFunc(fn func()) {
	s.mu.Lock()
	s.drain = fn
	s.mu.Unlock()
}

func (s *OtoSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.player.Play()
		s.started = true
	}
	return nil
}

// Read feeds the oto player from the queued buffers.
func (s *OtoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	n := copy(p, s.queued)
	s.queued = append(s.queued[:0], s.queued[n:]...)
	empty := len(s.queued) == 0
	drain := s.drain
	s.mu.Unlock()

	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	if empty && drain != nil {
		drain()
	}
	return len(p), nil
}

func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Close()
		s.player = nil
	}
	return nil
}
