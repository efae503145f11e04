package main

import (
	"strings"
	"testing"

	"github.com/songxxzp/MicroKeyBoard/audio"
)

func newTestEnv(t *testing.T) *env {
	t.Helper()
	store := audio.NewStore(16000)
	store.LoadRaw("C4", make([]int16, 16000))
	store.LoadRaw("E4", make([]int16, 16000))
	props := audio.NewProps()
	sampler := audio.NewSampler(store, t.TempDir())
	engine, err := audio.NewEngine(audio.Config{Volume: 0.5}, audio.NewNullSink(16000, 1024), sampler, props)
	if err != nil {
		t.Fatal(err)
	}
	return &env{
		engine: engine,
		store:  store,
		player: audio.NewSchedulePlayer(nil, props),
		props:  props,
	}
}

func TestEvalUnknownCommand(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.eval("bogus")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("want unknown command error, got %v", err)
	}
}

func TestEvalArity(t *testing.T) {
	e := newTestEnv(t)
	for _, input := range []string{"play", "set volume", "get", "midi"} {
		if _, err := e.eval(input); err == nil {
			t.Errorf("%q: want arity error", input)
		}
	}
	// Optional trailing arguments are allowed.
	if _, err := e.eval("play C4 100"); err != nil {
		t.Errorf("play with duration: %v", err)
	}
}

func TestPlayCommand(t *testing.T) {
	e := newTestEnv(t)
	out, err := e.eval("play C4")
	if err != nil {
		t.Fatal(err)
	}
	if want := "voice 1"; out != want {
		t.Errorf("want %q, got %q", want, out)
	}
	if _, err := e.eval("play H9"); err == nil {
		t.Error("want error for invalid note")
	}
	if _, err := e.eval("play C4 abc"); err == nil {
		t.Error("want error for bad duration")
	}
}

func TestStopCommand(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.eval("play C4"); err != nil {
		t.Fatal(err)
	}
	// Numeric argument stops by voice id, otherwise by note name.
	if _, err := e.eval("stop 1"); err != nil {
		t.Errorf("stop by id: %v", err)
	}
	if _, err := e.eval("stop C4 200"); err != nil {
		t.Errorf("stop by name: %v", err)
	}
	if _, err := e.eval("stop C4 abc"); err == nil {
		t.Error("want error for bad delay")
	}
}

func TestNotesCommand(t *testing.T) {
	e := newTestEnv(t)
	out, err := e.eval("notes")
	if err != nil {
		t.Fatal(err)
	}
	if want := "C4 E4"; out != want {
		t.Errorf("want %q, got %q", want, out)
	}
}

func TestSetGetCommands(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.eval("set volume 0.25"); err != nil {
		t.Fatal(err)
	}
	out, err := e.eval("get volume")
	if err != nil {
		t.Fatal(err)
	}
	if want := "0.25"; out != want {
		t.Errorf("want %q, got %q", want, out)
	}
	if _, err := e.eval("set volume 9"); err == nil {
		t.Error("want range error")
	}
	if _, err := e.eval("get nope"); err == nil {
		t.Error("want unknown property error")
	}
}

func TestStatusCommand(t *testing.T) {
	e := newTestEnv(t)
	out, err := e.eval("status")
	if err != nil {
		t.Fatal(err)
	}
	if want := "playing: false, voices: 0, steals: 0"; out != want {
		t.Errorf("want %q, got %q", want, out)
	}
}
