package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/songxxzp/MicroKeyBoard/audio"
)

func main() {
	var (
		sounds   = flag.String("sounds", "wav/piano/16000", "directory of recorded note samples")
		cache    = flag.String("cache", "", "directory for pre-rendered pitch-shifted samples")
		rate     = flag.Int("rate", 16000, "output sample rate in Hz")
		buffer   = flag.Int("buffer", 1024, "samples per output buffer")
		voices   = flag.Int("voices", 8, "voice pool capacity")
		volume   = flag.Float64("volume", 0.5, "mix volume factor (0-1]")
		always   = flag.Bool("always-on", false, "keep the sink clocked with silence between notes")
		backend  = flag.String("backend", "portaudio", "audio backend: portaudio, oto or none")
		midiFile = flag.String("midi", "", "midi file to play on startup")
		tempo    = flag.Float64("tempo", 1.0, "song tempo multiplier")
		duration = flag.Float64("note-duration", 1.8, "seconds of sample to preload per note (0 = full)")
		run      = flag.String("run", "", "command script to execute before the prompt")
	)
	flag.Parse()

	store := audio.NewStore(*rate)
	if err := store.LoadDir(*sounds); err != nil {
		log.Fatal(err)
	}
	if len(store.Notes()) == 0 {
		log.Fatalf("no samples found in %s", *sounds)
	}
	sampler := audio.NewSampler(store, *cache)

	var sink audio.Sink
	var err error
	switch *backend {
	case "portaudio":
		sink, err = audio.NewPortAudioSink(*rate, *buffer)
	case "oto":
		sink, err = audio.NewOtoSink(*rate, *buffer)
	case "none":
		sink = audio.NewNullSink(*rate, *buffer)
	default:
		log.Fatalf("unknown backend: %s", *backend)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer sink.Close()

	props := audio.NewProps()
	engine, err := audio.NewEngine(audio.Config{
		SampleRate:    *rate,
		BufferSamples: *buffer,
		MaxVoices:     *voices,
		Volume:        *volume,
		AlwaysOn:      *always,
		NoteDuration:  *duration,
	}, sink, sampler, props)
	if err != nil {
		log.Fatal(err)
	}

	env := &env{
		engine: engine,
		store:  store,
		player: audio.NewSchedulePlayer(nil, props),
		props:  props,
	}
	if err := props.Set("tempo", *tempo); err != nil {
		log.Fatal(err)
	}

	var startup []string
	if *run != "" {
		f, err := os.Open(*run)
		if err != nil {
			log.Fatal(err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			startup = append(startup, strings.TrimSpace(scanner.Text()))
		}
		if err := scanner.Err(); err != nil {
			log.Fatal(err)
		}
		f.Close()
	}
	if *midiFile != "" {
		startup = append(startup, "midi "+*midiFile)
	}
	for _, line := range startup {
		if line == "" {
			continue
		}
		if result, err := env.eval(line); err != nil {
			log.Fatal(err)
		} else if result != "" {
			fmt.Println(result)
		}
	}

	if err := repl(env); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
