package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
)

// ErrNoSamples is returned when pitch synthesis is requested but the store
// holds no recorded notes to derive from.
var ErrNoSamples = errors.New("no recorded samples to synthesize from")

// Sampler returns PCM data for a requested note: directly from the store
// when the pitch was recorded, otherwise synthesized by resampling the
// closest recorded pitch. Derived buffers are cached in memory under a
// synthetic key and, when a cache directory is configured, persisted as raw
// little-endian PCM so later boots skip the resample.
type Sampler struct {
	store    *Store
	cacheDir string
	derived  map[string][]int16
}

func NewSampler(store *Store, cacheDir string) *Sampler {
	return &Sampler{
		store:    store,
		cacheDir: cacheDir,
		derived:  make(map[string][]int16),
	}
}

// GetSample returns up to duration seconds of PCM for note. A duration of
// zero means the full sample. A recorded note comes back as the literal
// cached buffer (truncated when bounded); anything else is pitch-shifted
// from the closest recorded note by frequency distance.
func (s *Sampler) GetSample(note string, duration float64) ([]int16, error) {
	if pcm, ok := s.store.Get(note); ok {
		if duration <= 0 {
			return pcm, nil
		}
		n := int(math.Round(duration * float64(s.store.Rate())))
		if n >= len(pcm) {
			return pcm, nil
		}
		return pcm[:n], nil
	}

	key := fmt.Sprintf("%s@%gs", note, duration)
	if pcm, ok := s.derived[key]; ok {
		return pcm, nil
	}
	if pcm, ok := s.readCache(note, duration); ok {
		s.derived[key] = pcm
		return pcm, nil
	}

	pcm, err := s.synthesize(note, duration)
	if err != nil {
		return nil, err
	}
	s.derived[key] = pcm
	s.writeCache(note, duration, pcm)
	return pcm, nil
}

// synthesize resamples the closest recorded note by linear interpolation.
func (s *Sampler) synthesize(note string, duration float64) ([]int16, error) {
	target, err := ParseNote(note)
	if err != nil {
		return nil, err
	}
	targetFreq := NoteFreq(target)

	// Closest recorded note by absolute frequency distance. The store's
	// note order is deterministic, so an exact tie always resolves to the
	// first minimum found.
	var closest string
	var closestFreq float64
	best := math.Inf(1)
	for _, name := range s.store.Notes() {
		n, err := ParseNote(name)
		if err != nil {
			continue
		}
		freq := NoteFreq(n)
		if d := math.Abs(freq - targetFreq); d < best {
			best = d
			closest = name
			closestFreq = freq
		}
	}
	if closest == "" {
		return nil, fmt.Errorf("synthesize %s: %w", note, ErrNoSamples)
	}

	src, _ := s.store.Get(closest)
	shift := targetFreq / closestFreq
	rate := float64(s.store.Rate())
	if duration > 0 {
		// Read a little extra source material so the resampled output
		// still covers the requested length.
		need := int(math.Round((duration + 0.1) * shift * rate))
		if need < len(src) {
			src = src[:need]
		}
	}

	newLen := int(math.Floor(float64(len(src)) / shift))
	out := make([]int16, 0, newLen)
	for i := 0; i < newLen; i++ {
		pos := float64(i) * shift
		j := int(pos)
		if j >= len(src) {
			break
		}
		if j == len(src)-1 {
			out = append(out, src[j])
			continue
		}
		frac := pos - float64(j)
		v := float64(src[j])*(1-frac) + float64(src[j+1])*frac
		out = append(out, int16(v))
	}
	if duration > 0 {
		if n := int(math.Round(duration * rate)); len(out) > n {
			out = out[:n]
		}
	}
	return out, nil
}

// cachePath buckets renders by rate and duration so one cache directory
// can serve runs with different settings without mixing entries.
func (s *Sampler) cachePath(note string, duration float64) string {
	bucket := fmt.Sprintf("%d_%gs", s.store.Rate(), duration)
	return filepath.Join(s.cacheDir, bucket, note+".pcm")
}

func (s *Sampler) readCache(note string, duration float64) ([]int16, bool) {
	if s.cacheDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(s.cachePath(note, duration))
	if err != nil {
		return nil, false
	}
	return pcmFromBytes(data), true
}

func (s *Sampler) writeCache(note string, duration float64, pcm []int16) {
	if s.cacheDir == "" {
		return
	}
	path := s.cachePath(note, duration)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("audio: sample cache: %v", err)
		return
	}
	if err := os.WriteFile(path, pcmBytes(pcm), 0o644); err != nil {
		log.Printf("audio: sample cache: %v", err)
	}
}

func pcmBytes(pcm []int16) []byte {
	out := make([]byte, 2*len(pcm))
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func pcmFromBytes(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}
