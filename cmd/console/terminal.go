package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// terminal puts stdin in raw, non-blocking mode and forwards each byte read
// to keys until stopped.
type terminal struct {
	keys         chan<- byte
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State
}

func newTerminal(keys chan<- byte) *terminal {
	return &terminal{
		keys:   keys,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (t *terminal) Start() error {
	t.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(t.fd)
	if err != nil {
		close(t.done)
		return fmt.Errorf("setting raw mode: %w", err)
	}
	t.oldTermState = oldState

	if err := syscall.SetNonblock(t.fd, true); err != nil {
		_ = term.Restore(t.fd, t.oldTermState)
		t.oldTermState = nil
		close(t.done)
		return fmt.Errorf("setting nonblocking stdin: %w", err)
	}
	t.nonblockSet = true

	go t.readLoop()
	return nil
}

func (t *terminal) readLoop() {
	defer close(t.done)
	buf := make([]byte, 16)

	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		n, err := syscall.Read(t.fd, buf)
		for i := 0; i < n; i++ {
			select {
			case t.keys <- buf[i]:
			case <-t.stopCh:
				return
			}
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK || n <= 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
	}
}

// Stop ends the reader and restores the terminal.
func (t *terminal) Stop() {
	t.stopped.Do(func() {
		close(t.stopCh)
	})
	<-t.done
	if t.nonblockSet {
		_ = syscall.SetNonblock(t.fd, false)
		t.nonblockSet = false
	}
	if t.oldTermState != nil {
		_ = term.Restore(t.fd, t.oldTermState)
		t.oldTermState = nil
	}
}
