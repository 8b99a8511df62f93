package protocol

import (
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by WriteFrame once either end of a Pipe is closed.
var ErrClosed = errors.New("protocol: connection closed")

// MaxFrameSize bounds a single frame read from a network transport.
const MaxFrameSize = 1 << 20

// Conn is a bidirectional, in-order stream of frames. Every frame holds one
// encoded message. ReadFrame returns io.EOF once the peer has gone away.
// WriteFrame must be safe to call from one goroutine while another reads.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Pipe returns two connected in-process ends. Closing either end closes both.
func Pipe() (Conn, Conn) {
	var (
		ab   = make(chan []byte, 64)
		ba   = make(chan []byte, 64)
		done = make(chan struct{})
		once = new(sync.Once)
	)
	return &pipeEnd{in: ba, out: ab, done: done, once: once},
		&pipeEnd{in: ab, out: ba, done: done, once: once}
}

type pipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

func (p *pipeEnd) ReadFrame() ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	default:
	}

	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.done:
		return nil, io.EOF
	}
}

func (p *pipeEnd) WriteFrame(frame []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	buf := append([]byte(nil), frame...)
	select {
	case p.out <- buf:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
