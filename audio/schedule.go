package audio

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

// Event is one step on a song timeline: a note going on or off at an
// offset from the start of the song.
type Event struct {
	Offset time.Duration
	Note   string
	On     bool
}

// ReadSong parses a standard MIDI file into a flat, time-ordered event
// list. Only note events are kept; a note-on with zero velocity counts as
// the note's end, which is how many files encode note-off. Everything else
// in the file is ignored.
func ReadSong(r io.Reader) ([]Event, error) {
	var events []Event
	rd := smf.ReadTracksFrom(r)
	rd.Do(func(te smf.TrackEvent) {
		var ch, key, vel uint8
		offset := time.Duration(te.AbsMicroSeconds) * time.Microsecond
		switch {
		case te.Message.GetNoteStart(&ch, &key, &vel):
			events = append(events, Event{Offset: offset, Note: NoteName(int(key)), On: true})
		case te.Message.GetNoteEnd(&ch, &key):
			events = append(events, Event{Offset: offset, Note: NoteName(int(key)), On: false})
		}
	})
	if err := rd.Error(); err != nil {
		return nil, fmt.Errorf("read song: %w", err)
	}
	// Tracks are visited one after another; merge them on the timeline.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Offset < events[j].Offset
	})
	return events, nil
}

// ReadSongFile parses a standard MIDI file from disk.
func ReadSongFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSong(f)
}

// defaultLeadIn delays the first event so playback does not start while
// buffers are still priming.
const defaultLeadIn = 500 * time.Millisecond

// SchedulePlayer walks a precomputed timeline, dispatching events as their
// deadlines pass. It is polled from the control loop and compares elapsed
// time against the original start timestamp on every poll, so jitter in
// the polling cadence never accumulates into drift.
type SchedulePlayer struct {
	events  []Event
	cursor  int
	start   time.Time
	playing bool
	leadIn  time.Duration
	tempo   *atomic.Value
	now     func() time.Time
}

// NewSchedulePlayer creates a player over an initial timeline, which may be
// nil. The tempo multiplier is registered as the "tempo" property: 2.0
// plays twice as fast, 0.5 at half speed.
func NewSchedulePlayer(events []Event, props *Props) *SchedulePlayer {
	return &SchedulePlayer{
		events: events,
		leadIn: defaultLeadIn,
		tempo:  props.MustRegister("tempo", setFloat64(0.01, 100), 1.0),
		now:    time.Now,
	}
}

// Load replaces the timeline and rewinds.
func (p *SchedulePlayer) Load(events []Event) {
	p.playing = false
	p.cursor = 0
	p.events = events
}

// Start rewinds the cursor and records the reference time all subsequent
// polls measure against.
func (p *SchedulePlayer) Start() {
	p.cursor = 0
	p.start = p.now()
	p.playing = true
}

// Stop halts playback without rewinding.
func (p *SchedulePlayer) Stop() { p.playing = false }

// Reset halts playback and rewinds to the first event.
func (p *SchedulePlayer) Reset() {
	p.playing = false
	p.cursor = 0
}

// Step dispatches at most one due event and reports whether more remain.
// Skipped polls are harmless: the next poll fires the event late but
// subsequent events stay anchored to the start time.
func (p *SchedulePlayer) Step(dispatch func(i int, events []Event)) bool {
	if !p.playing || p.cursor >= len(p.events) {
		return false
	}
	tempo := p.tempo.Load().(float64)
	due := p.leadIn + time.Duration(float64(p.events[p.cursor].Offset)/tempo)
	if p.now().Sub(p.start) >= due {
		i := p.cursor
		p.cursor++
		dispatch(i, p.events)
	}
	return p.cursor < len(p.events)
}
