package audio

import (
	"fmt"
	"math"
	"strconv"
)

// Scientific pitch notation mapped to MIDI note numbers and equal
// temperament frequencies. C4 is MIDI note 60, A4 is 69 at 440 Hz.

const (
	a4Note = 69
	a4Freq = 440.0
)

var noteOffsets = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ParseNote converts a note name like "C4", "A#3" or "Db5" to its MIDI
// note number.
func ParseNote(name string) (int, error) {
	if len(name) < 2 {
		return 0, fmt.Errorf("invalid note name: %q", name)
	}
	letter := name[0]
	if letter >= 'a' && letter <= 'g' {
		letter -= 'a' - 'A'
	}
	offset, ok := noteOffsets[letter]
	if !ok {
		return 0, fmt.Errorf("invalid note name: %q", name)
	}
	rest := name[1:]
	switch rest[0] {
	case '#':
		offset++
		rest = rest[1:]
	case 'b':
		offset--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid note name: %q", name)
	}
	note := (octave+1)*12 + offset
	if note < 0 || note > 127 {
		return 0, fmt.Errorf("note out of midi range: %q", name)
	}
	return note, nil
}

// NoteName returns the sharp-spelled name of a MIDI note number, e.g. 61
// becomes "C#4".
func NoteName(note int) string {
	return fmt.Sprintf("%s%d", sharpNames[note%12], note/12-1)
}

// NoteFreq returns the equal temperament frequency of a MIDI note number.
func NoteFreq(note int) float64 {
	return a4Freq * math.Pow(2, float64(note-a4Note)/12.0)
}
