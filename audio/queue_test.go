package audio

import (
	"context"
	"testing"
	"time"
)

func TestCommandBufferOrder(t *testing.T) {
	buf := newCommandBuffer(8)
	buf.push(command{kind: cmdPlay, id: 1})
	buf.push(command{kind: cmdStopID, id: 1, deadline: time.Unix(1000, 0)})

	var cmds []command
	buf.drain(func(cmd command) {
		cmds = append(cmds, cmd)
	})
	if want, got := 2, len(cmds); want != got {
		t.Fatalf("expected %v commands, got %v", want, got)
	}
	if cmds[0].kind != cmdPlay || cmds[1].kind != cmdStopID {
		t.Errorf("commands drained out of order: %+v", cmds)
	}

	cmds = nil
	buf.drain(func(cmd command) {
		cmds = append(cmds, cmd)
	})
	if len(cmds) != 0 {
		t.Errorf("expected drained buffer to be empty, got %v", cmds)
	}
}

func TestCommandBufferConcurrent(t *testing.T) {
	buf := newCommandBuffer(8)

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	var cmds []command
	go func() {
		for {
			select {
			case <-ctx.Done():
				buf.drain(func(cmd command) {
					cmds = append(cmds, cmd)
				})
				done <- struct{}{}
				return
			default:
				buf.drain(func(cmd command) {
					cmds = append(cmds, cmd)
				})
			}
		}
	}()

	const numCommands = 100_000
	for n := 0; n < numCommands; n++ {
		buf.push(command{id: uint64(n)})
	}

	cancel()
	<-done

	if len(cmds) != numCommands {
		t.Fatalf("wrong number of commands: want %v, got %v", numCommands, len(cmds))
	}
	for n, cmd := range cmds {
		if want, got := uint64(n), cmd.id; want != got {
			t.Fatalf("discontinuous command id: want %v, got %v", want, got)
		}
	}
}
