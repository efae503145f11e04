package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func rampClip(length int) []int16 {
	clip := make([]int16, length)
	for i := range clip {
		clip[i] = int16(i % 10000)
	}
	return clip
}

func TestGetSampleRecordedNote(t *testing.T) {
	store := NewStore(16000)
	clip := rampClip(32000)
	store.LoadRaw("C4", clip)
	sampler := NewSampler(store, "")

	got, err := sampler.GetSample("C4", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(clip) {
		t.Fatalf("length: want %v, got %v", len(clip), len(got))
	}
	for i := range got {
		if got[i] != clip[i] {
			t.Fatalf("sample %d differs: want %v, got %v", i, clip[i], got[i])
		}
	}
}

func TestGetSampleDurationTruncation(t *testing.T) {
	store := NewStore(16000)
	store.LoadRaw("A4", rampClip(32000)) // two seconds
	sampler := NewSampler(store, "")

	got, err := sampler.GetSample("A4", 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if want := 16000; len(got) != want {
		t.Fatalf("length: want %v, got %v", want, len(got))
	}

	// A source shorter than the requested duration comes back whole.
	store.LoadRaw("B4", rampClip(8000))
	got, err = sampler.GetSample("B4", 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if want := 8000; len(got) != want {
		t.Fatalf("short source length: want %v, got %v", want, len(got))
	}
}

func TestSynthesizePicksClosestByFrequency(t *testing.T) {
	store := NewStore(16000)
	store.LoadRaw("C4", constClip(1000, 4000))
	store.LoadRaw("D4", constClip(2000, 4000))
	sampler := NewSampler(store, "")

	// C#4 is 15.56 Hz from C4 and 16.48 Hz from D4.
	got, err := sampler.GetSample("C#4", 0)
	if err != nil {
		t.Fatal(err)
	}
	shift := NoteFreq(61) / NoteFreq(60)
	if want := int(math.Floor(4000 / shift)); len(got) != want {
		t.Errorf("length: want %v, got %v", want, len(got))
	}
	// Interpolating a constant signal keeps the constant, so the value
	// tells which source was chosen.
	if want := int16(1000); got[0] != want || got[len(got)-1] != want {
		t.Errorf("expected samples derived from C4 (1000), got %v..%v", got[0], got[len(got)-1])
	}
}

func TestSynthesizeDurationBound(t *testing.T) {
	store := NewStore(16000)
	store.LoadRaw("C4", constClip(1000, 64000))
	sampler := NewSampler(store, "")

	got, err := sampler.GetSample("C#4", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if want := 8000; len(got) != want {
		t.Errorf("length: want %v, got %v", want, len(got))
	}
}

func TestSynthesizeInterpolates(t *testing.T) {
	store := NewStore(16000)
	src := make([]int16, 4000)
	for i := range src {
		src[i] = int16(i)
	}
	store.LoadRaw("C4", src)
	sampler := NewSampler(store, "")

	got, err := sampler.GetSample("C#4", 0)
	if err != nil {
		t.Fatal(err)
	}
	// Output position i reads source position i*shift; on a ramp the
	// interpolated value is the position itself, truncated to int16.
	shift := NoteFreq(61) / NoteFreq(60)
	for _, i := range []int{1, 100, 2000} {
		want := int16(float64(i) * shift)
		if d := got[i] - want; d < -1 || d > 1 {
			t.Errorf("sample %d: want ~%v, got %v", i, want, got[i])
		}
	}
}

func TestSamplerDiskCache(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(16000)
	store.LoadRaw("C4", constClip(1000, 16000))

	sampler := NewSampler(store, dir)
	first, err := sampler.GetSample("C#4", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "16000_0.5s", "C#4.pcm")); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}

	// A fresh sampler over the same directory serves the cached render.
	fresh := NewSampler(store, dir)
	second, err := fresh.GetSample("C#4", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("cached length: want %v, got %v", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached sample %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestSamplerCacheKeyedByDuration(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(16000)
	store.LoadRaw("C4", constClip(1000, 64000))

	long := NewSampler(store, dir)
	if _, err := long.GetSample("C#4", 1.0); err != nil {
		t.Fatal(err)
	}

	// A fresh sampler asking for a different duration over the same cache
	// directory must not be served the earlier, longer render.
	short := NewSampler(store, dir)
	got, err := short.GetSample("C#4", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if want := 8000; len(got) != want {
		t.Fatalf("length: want %v, got %v", want, len(got))
	}
}

func TestSynthesizeWithoutSamples(t *testing.T) {
	sampler := NewSampler(NewStore(16000), "")
	if _, err := sampler.GetSample("C4", 0); !errors.Is(err, ErrNoSamples) {
		t.Errorf("want ErrNoSamples, got %v", err)
	}
}

func TestGetSampleBadNote(t *testing.T) {
	store := NewStore(16000)
	store.LoadRaw("C4", constClip(1000, 1000))
	sampler := NewSampler(store, "")
	if _, err := sampler.GetSample("X9", 0); err == nil {
		t.Error("expected error for invalid note name")
	}
}
