package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/songxxzp/MicroKeyBoard/audio"
)

// releaseDelay is how long a note keeps ringing after its note-off, the way
// a piano string does not damp instantly.
const releaseDelay = 500 * time.Millisecond

type env struct {
	engine *audio.Engine
	store  *audio.Store
	player *audio.SchedulePlayer
	props  *audio.Props

	// mu serializes all engine calls onto one logical control context:
	// REPL commands and the song polling goroutine both go through it.
	mu sync.Mutex
}

func (e *env) eval(input string) (string, error) {
	args := strings.Fields(input)
	name := args[0]
	args = args[1:]
	for _, cmd := range commands {
		if name != cmd.name {
			continue
		}
		if cmd.arity < 0 {
			arity := -cmd.arity
			if len(args) < arity {
				return "", fmt.Errorf("%s: wrong number of arguments: need at least %v, got %v",
					cmd.name, arity, len(args))
			}
		} else if len(args) != cmd.arity {
			return "", fmt.Errorf("%s: wrong number of arguments: want %v, got %v",
				cmd.name, cmd.arity, len(args))
		}
		result, err := cmd.run(e, args)
		if err != nil {
			return result, fmt.Errorf("%s error: %w", cmd.name, err)
		}
		return result, nil
	}
	return "", fmt.Errorf("unknown command: %s", name)
}

type command struct {
	name  string
	run   func(*env, []string) (string, error)
	arity int // -n means len(args) must be >= n
}

var commands = []command{
	{"play", playCommand, -1},
	{"stop", stopCommand, -1},
	{"stopall", stopAllCommand, 0},
	{"notes", notesCommand, 0},
	{"midi", midiCommand, 1},
	{"halt", haltCommand, 0},
	{"set", setCommand, 2},
	{"get", getCommand, 1},
	{"status", statusCommand, 0},
}

// play <note> [stop-after-ms]
func playCommand(env *env, args []string) (string, error) {
	var autoStop time.Duration
	if len(args) > 1 {
		ms, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("bad duration: %q", args[1])
		}
		autoStop = time.Duration(ms) * time.Millisecond
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	id, err := env.engine.PlayNoteFor(args[0], autoStop)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("voice %d", id), nil
}

// stop <note|voice-id> [delay-ms]
func stopCommand(env *env, args []string) (string, error) {
	delay := time.Duration(0)
	if len(args) > 1 {
		ms, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("bad delay: %q", args[1])
		}
		delay = time.Duration(ms) * time.Millisecond
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	if id, err := strconv.ParseUint(args[0], 10, 64); err == nil {
		env.engine.StopNote(id, delay)
	} else {
		env.engine.StopName(args[0], delay)
	}
	return "", nil
}

func stopAllCommand(env *env, _ []string) (string, error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.player.Reset()
	env.engine.StopAll()
	return "", nil
}

func notesCommand(env *env, _ []string) (string, error) {
	return strings.Join(env.store.Notes(), " "), nil
}

// midi <file> loads a song, preloads its notes and plays it in the
// background while the prompt stays responsive.
func midiCommand(env *env, args []string) (string, error) {
	events, err := audio.ReadSongFile(args[0])
	if err != nil {
		return "", err
	}
	seen := make(map[string]bool)
	var notes []string
	for _, ev := range events {
		if ev.On && !seen[ev.Note] {
			seen[ev.Note] = true
			notes = append(notes, ev.Note)
		}
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	if err := env.engine.Preload(notes); err != nil {
		return "", err
	}
	env.player.Load(events)
	env.player.Start()
	go env.pollSong()
	return fmt.Sprintf("playing %s: %d events", args[0], len(events)), nil
}

func (e *env) pollSong() {
	for {
		e.mu.Lock()
		more := e.player.Step(e.dispatch)
		e.mu.Unlock()
		if !more {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// dispatch runs with e.mu held by pollSong.
func (e *env) dispatch(i int, events []audio.Event) {
	ev := events[i]
	if ev.On {
		if _, err := e.engine.PlayNote(ev.Note); err != nil {
			log.Printf("song: %v", err)
		}
	} else {
		e.engine.StopName(ev.Note, releaseDelay)
	}
}

func haltCommand(env *env, _ []string) (string, error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.player.Stop()
	return "", nil
}

// set <prop> <value>
func setCommand(env *env, args []string) (string, error) {
	if f, err := strconv.ParseFloat(args[1], 64); err == nil {
		return "", env.props.Set(args[0], f)
	}
	return "", env.props.Set(args[0], args[1])
}

func getCommand(env *env, args []string) (string, error) {
	v, err := env.props.Get(args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func statusCommand(env *env, _ []string) (string, error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	return fmt.Sprintf("playing: %v, voices: %d, steals: %d",
		env.engine.IsPlaying(), env.engine.ActiveVoices(), env.engine.Steals()), nil
}
