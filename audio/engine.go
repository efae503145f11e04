package audio

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrConfig is returned when the engine is constructed with an output
// configuration the mixer does not support.
var ErrConfig = errors.New("unsupported output configuration")

// maxRenderRetries bounds the zero-output recovery loop inside the render
// tick. The loop replaces recursive self-invocation, so running out of
// retries is a logic error that degrades to silence instead of crashing
// the playback context.
const maxRenderRetries = 4

type Config struct {
	SampleRate    int
	BufferSamples int
	MaxVoices     int
	Bits          int     // zero means 16; anything else is rejected
	Channels      int     // zero means 1; anything else is rejected
	Volume        float64 // initial mix volume, required, in (0, 1]
	AlwaysOn      bool    // keep the sink clocked with silence between phrases
	NoteDuration  float64 // seconds of sample preloaded per note, 0 = full length
}

func (c *Config) fillDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.BufferSamples == 0 {
		c.BufferSamples = 1024
	}
	if c.MaxVoices == 0 {
		c.MaxVoices = 8
	}
	if c.Bits == 0 {
		c.Bits = 16
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
}

func (c Config) validate() error {
	if c.Bits != 16 || c.Channels != 1 {
		return fmt.Errorf("%d-bit %d-channel output: %w", c.Bits, c.Channels, ErrConfig)
	}
	if c.SampleRate <= 0 || c.BufferSamples <= 0 || c.MaxVoices <= 0 {
		return fmt.Errorf("rate %d, buffer %d, voices %d: %w",
			c.SampleRate, c.BufferSamples, c.MaxVoices, ErrConfig)
	}
	if c.Volume <= 0 || c.Volume > 1 {
		return fmt.Errorf("volume %v: %w", c.Volume, ErrConfig)
	}
	return nil
}

// Engine mixes concurrently sounding notes into a continuous PCM stream.
// Two fixed buffers alternate ping-pong style: while one is out at the
// sink, the render tick prepares the other. All buffers and voice slots
// are sized at construction; the render path neither allocates nor does
// I/O beyond handing a prepared buffer to the sink.
//
// PlayNote and StopNote may be called from one control goroutine; they
// only push onto the command queue. The render tick, driven by the sink's
// drain callback, is the sole owner of voice slots, mix buffers and the
// stop table.
type Engine struct {
	*Props

	cfg     Config
	sink    Sink
	sampler *Sampler
	volume  *atomic.Value

	queue *commandBuffer
	pool  *pool
	stops map[uint64]time.Time // voice id -> stop deadline, render tick only

	buffers [2][]int16
	acc     []int32
	valid   [2]int
	playIdx int

	playing atomic.Bool
	nextID  atomic.Uint64

	// mu is held by the render tick, StopAll and the Idle->Playing
	// transition: the software analogue of briefly masking the interrupt.
	mu  sync.Mutex
	now func() time.Time

	retryOverflow atomic.Uint64
}

func NewEngine(cfg Config, sink Sink, sampler *Sampler, props *Props) (*Engine, error) {
	cfg.fillDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		Props:   props,
		cfg:     cfg,
		sink:    sink,
		sampler: sampler,
		queue:   newCommandBuffer(64),
		pool:    newPool(cfg.MaxVoices),
		stops:   make(map[uint64]time.Time, cfg.MaxVoices),
		acc:     make([]int32, cfg.BufferSamples),
		now:     time.Now,
	}
	e.buffers[0] = make([]int16, cfg.BufferSamples)
	e.buffers[1] = make([]int16, cfg.BufferSamples)
	e.volume = props.MustRegister("volume", setFloat64(0, 1), cfg.Volume)
	sink.SetDrainFunc(e.renderTick)
	return e, nil
}

// PlayNote starts a note and returns the id addressing the new voice.
func (e *Engine) PlayNote(note string) (uint64, error) {
	return e.PlayNoteLabeled(note, note, 0)
}

// PlayNoteFor starts a note that stops itself after the given duration.
func (e *Engine) PlayNoteFor(note string, autoStop time.Duration) (uint64, error) {
	return e.PlayNoteLabeled(note, note, autoStop)
}

// PlayNoteLabeled resolves the note's PCM data through the sampler and
// queues it for admission on the next render tick. The label is what
// StopName matches against; an autoStop greater than zero schedules a stop
// deadline up front. When the engine is idle this also primes the sink.
func (e *Engine) PlayNoteLabeled(note, label string, autoStop time.Duration) (uint64, error) {
	pcm, err := e.sampler.GetSample(note, e.cfg.NoteDuration)
	if err != nil {
		return 0, err
	}
	id := e.nextID.Add(1)
	now := e.now()
	e.queue.push(command{kind: cmdPlay, id: id, name: label, sample: pcm, start: now})
	if autoStop > 0 {
		e.queue.push(command{kind: cmdStopID, id: id, deadline: now.Add(autoStop)})
	}
	if !e.playing.Load() {
		e.prime()
	}
	return id, nil
}

// prime seeds both buffers with silence, writes the first one out and arms
// the sink, so the first mixed buffer is prepared inside the render tick
// rather than in the caller's context.
func (e *Engine) prime() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing.Load() {
		return
	}
	for i := range e.buffers {
		clearPCM(e.buffers[i])
		e.valid[i] = e.cfg.BufferSamples
	}
	e.sink.Write(e.buffers[0])
	e.playIdx = 1
	e.playing.Store(true)
	if err := e.sink.Start(); err != nil {
		log.Printf("audio: sink start: %v", err)
		e.playing.Store(false)
	}
}

// StopNote schedules the voice with the given id to stop once delay has
// elapsed. Retirement is lazy: it happens inside a later render tick, never
// synchronously.
func (e *Engine) StopNote(id uint64, delay time.Duration) {
	e.queue.push(command{kind: cmdStopID, id: id, deadline: e.now().Add(delay)})
}

// StopName schedules every active voice carrying the label to stop once
// delay has elapsed.
func (e *Engine) StopName(label string, delay time.Duration) {
	e.queue.push(command{kind: cmdStopName, name: label, deadline: e.now().Add(delay)})
}

// StopAll synchronously silences the engine: pending commands, voice slots,
// stop deadlines and both buffers are cleared under the engine lock. In
// always-on mode the sink stays armed and keeps receiving silence.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	wasPlaying := e.playing.Load()
	e.queue.drain(func(command) {})
	e.stopLocked()
	if e.cfg.AlwaysOn && wasPlaying {
		e.valid[0] = e.cfg.BufferSamples
		e.valid[1] = e.cfg.BufferSamples
		e.playing.Store(true)
	}
}

func (e *Engine) IsPlaying() bool {
	return e.playing.Load()
}

// ActiveVoices reports how many voices were sounding after the last render
// tick. Diagnostic only; it races the tick by design.
func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.active()
}

// Steals reports how many voices have been evicted to make room for newer
// ones since construction.
func (e *Engine) Steals() uint64 {
	return e.pool.stealCount()
}

// Preload renders and caches every note in the list so playback never
// synthesizes on the trigger path.
func (e *Engine) Preload(notes []string) error {
	for i, note := range notes {
		if _, err := e.sampler.GetSample(note, e.cfg.NoteDuration); err != nil {
			return fmt.Errorf("preload %s: %w", note, err)
		}
		log.Printf("audio: preloaded %s (%d/%d)", note, i+1, len(notes))
	}
	return nil
}

// renderTick runs in the sink's playback context whenever the buffer handed
// to the hardware has been consumed. One cycle writes the previously
// prepared buffer, flips the ping-pong index and mixes the next buffer. If
// nothing went out but voices are still active, the cycle reruns in the
// same call, since no further drain callback would arrive to move the
// pipeline along; the loop bound stands in for a recursion guard.
func (e *Engine) renderTick() {
	if !e.playing.Load() {
		return // spurious callback while idle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing.Load() {
		return
	}
	for attempt := 0; attempt < maxRenderRetries; attempt++ {
		playIdx := e.playIdx
		written := e.valid[playIdx]
		if e.cfg.AlwaysOn {
			// Always-on pads the tail with silence and emits a full
			// buffer every cycle to keep the drain cadence constant.
			buf := e.buffers[playIdx]
			clearPCM(buf[written:])
			e.sink.Write(buf)
		} else if written > 0 {
			e.sink.Write(e.buffers[playIdx][:written])
		}
		e.playIdx = 1 - playIdx
		mixed := e.prepare(e.playIdx)

		if e.cfg.AlwaysOn {
			return // silence keeps the clock alive, the next callback will come
		}
		if written > 0 {
			return
		}
		if mixed == 0 && e.pool.active() == 0 {
			e.stopLocked()
			return
		}
	}
	e.retryOverflow.Add(1)
	log.Printf("audio: render retries exhausted with active voices")
}

// prepare mixes all active voices into buffer idx: drain queued commands,
// advance the pool into the accumulator, then scale, clamp and record how
// many leading samples carry audio.
func (e *Engine) prepare(idx int) int {
	now := e.now()
	for i := range e.acc {
		e.acc[i] = 0
	}
	e.drainCommands(now)
	mixed := e.pool.advance(now, e.stops, e.acc)

	vol := e.volume.Load().(float64)
	buf := e.buffers[idx]
	for i := 0; i < mixed; i++ {
		v := float64(e.acc[i]) * vol
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		buf[i] = int16(v)
	}
	e.valid[idx] = mixed
	return mixed
}

func (e *Engine) drainCommands(now time.Time) {
	e.queue.drain(func(cmd command) {
		switch cmd.kind {
		case cmdPlay:
			if stolen := e.pool.trigger(cmd.id, cmd.name, cmd.sample, cmd.start); stolen {
				log.Printf("audio: voice pool full, stole oldest voice for %s", cmd.name)
			}
		case cmdStopID:
			e.stops[cmd.id] = cmd.deadline
		case cmdStopName:
			for i := range e.pool.voices {
				v := &e.pool.voices[i]
				if v.state == stateActive && v.name == cmd.name {
					e.stops[v.id] = cmd.deadline
				}
			}
		}
	})
}

// stopLocked resets to Idle. Callers hold e.mu.
func (e *Engine) stopLocked() {
	e.pool.clear()
	for id := range e.stops {
		delete(e.stops, id)
	}
	clearPCM(e.buffers[0])
	clearPCM(e.buffers[1])
	e.valid[0] = 0
	e.valid[1] = 0
	e.playIdx = 0
	e.playing.Store(false)
}

func clearPCM(buf []int16) {
	for i := range buf {
		buf[i] = 0
	}
}
