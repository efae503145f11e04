package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	wav "github.com/youpy/go-wav"
)

// ErrFormat is returned when a sample file is not 16-bit mono PCM at the
// store's sample rate.
var ErrFormat = errors.New("unsupported sample format")

// Store loads and caches raw 16-bit mono PCM sample data by note name.
// Buffers are immutable once loaded and live until they are unloaded.
//
// Loads and lookups happen on the control goroutine; the render tick only
// ever sees buffers through the voices that reference them.
type Store struct {
	rate    int
	samples map[string][]int16
	notes   []string // names that parse as notes, sorted by MIDI number
}

func NewStore(rate int) *Store {
	return &Store{
		rate:    rate,
		samples: make(map[string][]int16),
	}
}

func (s *Store) Rate() int { return s.rate }

// Load decodes a WAV stream and caches its samples under name. Loading a
// name that is already cached is a no-op returning the cached buffer.
func (s *Store) Load(name string, r io.Reader) ([]int16, error) {
	if pcm, ok := s.samples[name]; ok {
		return pcm, nil
	}
	// The RIFF decoder needs random access, so slurp the stream first.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("load sample %s: %w", name, err)
	}
	wr := wav.NewReader(bytes.NewReader(data))
	format, err := wr.Format()
	if err != nil {
		return nil, fmt.Errorf("load sample %s: %w", name, err)
	}
	if format.AudioFormat != wav.AudioFormatPCM || format.BitsPerSample != 16 {
		return nil, fmt.Errorf("load sample %s: %d-bit format %d: %w",
			name, format.BitsPerSample, format.AudioFormat, ErrFormat)
	}
	if format.NumChannels != 1 {
		return nil, fmt.Errorf("load sample %s: %d channels: %w", name, format.NumChannels, ErrFormat)
	}
	if int(format.SampleRate) != s.rate {
		return nil, fmt.Errorf("load sample %s: rate %d, want %d: %w",
			name, format.SampleRate, s.rate, ErrFormat)
	}
	var pcm []int16
	for {
		samples, err := wr.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load sample %s: %w", name, err)
		}
		for _, sample := range samples {
			pcm = append(pcm, int16(wr.IntValue(sample, 0)))
		}
	}
	s.put(name, pcm)
	return pcm, nil
}

// LoadFile loads a WAV file from disk under name.
func (s *Store) LoadFile(name, path string) ([]int16, error) {
	if pcm, ok := s.samples[name]; ok {
		return pcm, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load sample %s: %w", name, err)
	}
	defer f.Close()
	return s.Load(name, f)
}

// LoadRaw caches an already decoded buffer under name.
func (s *Store) LoadRaw(name string, pcm []int16) {
	s.put(name, pcm)
}

// LoadDir discovers samples in a directory. Files are named by pitch with
// an optional loudness layer suffix ("C4vH.wav" is note C4, layer H) and
// grouped by base note; when a note has several layers the first one in
// sorted filename order wins.
func (s *Store) LoadDir(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".wav")
		if i := strings.IndexByte(name, 'v'); i > 0 {
			name = name[:i]
		}
		if _, err := ParseNote(name); err != nil {
			log.Printf("audio: skipping %s: not named by pitch", path)
			continue
		}
		if _, ok := s.samples[name]; ok {
			continue
		}
		if _, err := s.LoadFile(name, path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(name string) ([]int16, bool) {
	pcm, ok := s.samples[name]
	return pcm, ok
}

// Unload evicts an entry. Voices already holding the buffer keep playing it.
func (s *Store) Unload(name string) {
	delete(s.samples, name)
	s.reindex()
}

// Notes returns the cached entries that are named by pitch, sorted by MIDI
// note number. This is the order the sampler scans when it searches for the
// closest recorded pitch, which keeps tie-breaking deterministic.
func (s *Store) Notes() []string {
	return s.notes
}

func (s *Store) put(name string, pcm []int16) {
	s.samples[name] = pcm
	s.reindex()
}

func (s *Store) reindex() {
	s.notes = s.notes[:0]
	for name := range s.samples {
		if _, err := ParseNote(name); err == nil {
			s.notes = append(s.notes, name)
		}
	}
	sort.Slice(s.notes, func(i, j int) bool {
		a, _ := ParseNote(s.notes[i])
		b, _ := ParseNote(s.notes[j])
		if a != b {
			return a < b
		}
		return s.notes[i] < s.notes[j]
	})
}
