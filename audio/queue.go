package audio

import (
	"runtime"
	"sync/atomic"
	"time"
)

type cmdKind uint8

const (
	cmdPlay cmdKind = iota
	cmdStopID
	cmdStopName
)

// command crosses from the control goroutine into the render tick: either a
// voice admission or a stop deadline.
type command struct {
	kind     cmdKind
	id       uint64
	name     string
	sample   []int16
	start    time.Time // trigger time, play commands
	deadline time.Time // stop commands
}

// commandBuffer is a lock-free spsc queue. The control goroutine pushes,
// the render tick drains.
type commandBuffer struct {
	commands    []command
	read, write *uint32
}

func newCommandBuffer(size int) *commandBuffer {
	if size <= 0 || size&(size-1) != 0 {
		panic("command buffer size must be a power of 2")
	}
	return &commandBuffer{
		commands: make([]command, size),
		read:     new(uint32),
		write:    new(uint32),
	}
}

func (b *commandBuffer) push(cmd command) {
	for atomic.LoadUint32(b.write)-atomic.LoadUint32(b.read) == uint32(len(b.commands)) {
		runtime.Gosched()
	}
	write := atomic.LoadUint32(b.write)
	b.commands[write%uint32(len(b.commands))] = cmd
	atomic.StoreUint32(b.write, write+1)
}

func (b *commandBuffer) drain(f func(command)) {
	read := atomic.LoadUint32(b.read)
	write := atomic.LoadUint32(b.write)
	for read != write {
		f(b.commands[read%uint32(len(b.commands))])
		read++
	}
	atomic.StoreUint32(b.read, read)
}
