package audio

import (
	"sync/atomic"
	"time"
)

type voiceState uint8

const (
	stateFree voiceState = iota
	stateActive
	stateFinished
)

// voice is one mixing slot. Slots are reinitialized in place; the pool
// allocates nothing after construction.
type voice struct {
	id     uint64
	name   string
	sample []int16
	cursor int
	start  time.Time
	state  voiceState
}

// pool is the fixed-capacity voice arena. Only the render tick mutates
// slots; the steal counter is atomic so diagnostics can read it from the
// control goroutine.
type pool struct {
	voices []voice
	steals uint64
}

func newPool(capacity int) *pool {
	return &pool{voices: make([]voice, capacity)}
}

// trigger claims a Free slot for a new voice. When the pool is full it
// steals the slot with the oldest start time; the stolen voice's remaining
// playback is lost. Reports whether a steal happened.
func (p *pool) trigger(id uint64, name string, sample []int16, start time.Time) bool {
	slot := -1
	for i := range p.voices {
		if p.voices[i].state == stateFree {
			slot = i
			break
		}
	}
	stolen := false
	if slot < 0 {
		for i := range p.voices {
			if slot < 0 || p.voices[i].start.Before(p.voices[slot].start) {
				slot = i
			}
		}
		stolen = true
		atomic.AddUint64(&p.steals, 1)
	}
	p.voices[slot] = voice{
		id:     id,
		name:   name,
		sample: sample,
		start:  start,
		state:  stateActive,
	}
	return stolen
}

// advance is the per-tick mix pass. Each active voice either retires
// because a stop deadline elapsed, or contributes up to len(acc) samples
// into the accumulator and moves its cursor. Finished slots are cleared to
// Free before returning so the pool never holds on to sample buffers.
// Returns the largest number of samples any voice contributed.
func (p *pool) advance(now time.Time, stops map[uint64]time.Time, acc []int32) int {
	mixed := 0
	for i := range p.voices {
		v := &p.voices[i]
		if v.state != stateActive {
			continue
		}
		if deadline, ok := stops[v.id]; ok && deadline.After(v.start) && now.After(deadline) {
			v.state = stateFinished
			continue
		}
		n := len(acc)
		if rem := len(v.sample) - v.cursor; rem < n {
			n = rem
		}
		for j := 0; j < n; j++ {
			acc[j] += int32(v.sample[v.cursor+j])
		}
		v.cursor += n
		if n > mixed {
			mixed = n
		}
		if v.cursor >= len(v.sample) {
			v.state = stateFinished
		}
	}
	for i := range p.voices {
		v := &p.voices[i]
		if v.state == stateFinished {
			delete(stops, v.id)
			*v = voice{}
		}
	}
	return mixed
}

func (p *pool) active() int {
	n := 0
	for i := range p.voices {
		if p.voices[i].state == stateActive {
			n++
		}
	}
	return n
}

func (p *pool) clear() {
	for i := range p.voices {
		p.voices[i] = voice{}
	}
}

func (p *pool) stealCount() uint64 {
	return atomic.LoadUint64(&p.steals)
}
