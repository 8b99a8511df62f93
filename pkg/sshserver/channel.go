package sshserver

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/ledzpl/tabsync/internal/protocol"
)

// Channel frames an SSH channel as newline-delimited messages. Frames must
// not contain a newline; compact JSON never does. Lines longer than
// protocol.MaxFrameSize end the stream with bufio.ErrTooLong.
type Channel struct {
	ch      ssh.Channel
	scanner *bufio.Scanner
	owner   io.Closer

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// wrapChannel frames ch. owner, when set, is closed together with the
// channel; dialers pass the client connection that only exists for ch.
func wrapChannel(ch ssh.Channel, owner io.Closer) *Channel {
	scanner := bufio.NewScanner(ch)
	scanner.Buffer(make([]byte, 0, 4096), protocol.MaxFrameSize)
	return &Channel{
		ch:      ch,
		scanner: scanner,
		owner:   owner,
	}
}

// ReadFrame returns the next frame, or io.EOF once the peer closed the
// channel.
func (c *Channel) ReadFrame() ([]byte, error) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) > 0 {
			return append([]byte(nil), line...), nil
		}
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// WriteFrame writes frame followed by a newline.
func (c *Channel) WriteFrame(frame []byte) error {
	if bytes.IndexByte(frame, '\n') >= 0 {
		return errors.New("sshserver: frame contains newline")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := c.ch.Write(buf)
	return err
}

// Close closes the channel and, for dialed channels, the client connection.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		err := c.ch.Close()
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if c.owner != nil {
			if ownerErr := c.owner.Close(); ownerErr != nil && err == nil {
				err = ownerErr
			}
		}
		c.closeErr = err
	})
	return c.closeErr
}
