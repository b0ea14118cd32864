package mailer

import (
	"bytes"
	"context"
	"sync"
)

var crlf = []byte("\r\n")

// maxLineLength bounds a single reply line including its partial tail.
const maxLineLength = 4096

type lineResult struct {
	line string
	err  error
}

// lineBuffer splits the inbound byte stream into CRLF terminated lines.
// Lines nobody asked for yet are queued, callers waiting for a line are
// served in FIFO order. Once failed, queued lines are still handed out and
// every call after that returns the failure.
type lineBuffer struct {
	mu      sync.Mutex
	partial []byte
	lines   []string
	waiters []chan lineResult
	err     error
}

func newLineBuffer() *lineBuffer {
	return &lineBuffer{}
}

// feed appends chunk and hands out every completed line. A partial line
// growing past maxLineLength fails the buffer with ErrLineTooLong. Chunks
// arriving after a failure are dropped.
func (b *lineBuffer) feed(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return nil
	}

	b.partial = append(b.partial, chunk...)
	for {
		i := bytes.Index(b.partial, crlf)
		if i < 0 {
			break
		}

		line := string(b.partial[:i])
		b.partial = append(b.partial[:0], b.partial[i+len(crlf):]...)
		b.deliver(line)
	}

	if len(b.partial) > maxLineLength {
		b.failLocked(ErrLineTooLong)
		return ErrLineTooLong
	}

	return nil
}

// deliver must be called with mu held.
func (b *lineBuffer) deliver(line string) {
	if len(b.waiters) > 0 {
		w := b.waiters[0]
		b.waiters = b.waiters[1:]
		w <- lineResult{line: line}
		return
	}

	b.lines = append(b.lines, line)
}

func (b *lineBuffer) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failLocked(err)
}

func (b *lineBuffer) failLocked(err error) {
	if b.err != nil {
		return
	}

	b.err = err
	b.partial = nil
	for _, w := range b.waiters {
		w <- lineResult{err: err}
	}
	b.waiters = nil
}

func (b *lineBuffer) nextLine(ctx context.Context) (string, error) {
	b.mu.Lock()
	if len(b.lines) > 0 {
		line := b.lines[0]
		b.lines = b.lines[1:]
		b.mu.Unlock()
		return line, nil
	}
	if b.err != nil {
		err := b.err
		b.mu.Unlock()
		return "", err
	}

	w := make(chan lineResult, 1)
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()

	select {
	case res := <-w:
		return res.line, res.err

	case <-ctx.Done():
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, other := range b.waiters {
			if other == w {
				b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
				return "", ctx.Err()
			}
		}

		// resolved concurrently with the cancellation, keep the line for the next caller
		if res := <-w; res.err == nil {
			b.lines = append([]string{res.line}, b.lines...)
		}
		return "", ctx.Err()
	}
}
