package sshserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"golang.org/x/crypto/ssh"
)

// PortChannelType is the SSH channel type that carries one coordinator port.
const PortChannelType = "tabsync-port"

// PortHandler handles an accepted port channel. The channel is closed when
// the handler returns.
type PortHandler func(conn *ssh.ServerConn, port *Channel)

// Server wraps the SSH listener lifecycle.
type Server struct {
	Addr   string
	Config *ssh.ServerConfig

	logger *log.Logger
}

// New creates a Server with the provided host signer. Clients are not
// authenticated.
func New(addr string, signer ssh.Signer, logger *log.Logger) *Server {
	cfg := &ssh.ServerConfig{
		NoClientAuth: true,
	}
	cfg.AddHostKey(signer)

	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		Addr:   addr,
		Config: cfg,
		logger: logger,
	}
}

// ListenAndServe listens on s.Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, handler PortHandler) error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("sshserver: listen %q: %w", s.Addr, err)
	}
	return s.Serve(ctx, listener, handler)
}

// Serve accepts connections on listener until ctx is cancelled or the
// listener fails. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler PortHandler) error {
	if handler == nil {
		return errors.New("sshserver: port handler required")
	}
	defer listener.Close()

	shutdown := make(chan struct{})
	defer close(shutdown)

	go func() {
		select {
		case <-ctx.Done():
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Printf("sshserver: listener close error: %v", err)
			}
		case <-shutdown:
		}
	}()

	s.logger.Printf("sshserver: listening on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Printf("sshserver: accept error: %v", err)
			continue
		}

		go s.handleConn(ctx, conn, handler)
	}
}

func (s *Server) handleConn(ctx context.Context, tcpConn net.Conn, handler PortHandler) {
	defer tcpConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(tcpConn, s.Config)
	if err != nil {
		s.logger.Printf("sshserver: handshake failed: %v", err)
		return
	}
	defer sshConn.Close()

	s.logger.Printf("sshserver: new connection from %s (%s)", sshConn.RemoteAddr(), sshConn.ClientVersion())

	go ssh.DiscardRequests(reqs)

	for {
		select {
		case <-ctx.Done():
			return
		case newChannel, ok := <-chans:
			if !ok {
				return
			}
			if newChannel.ChannelType() != PortChannelType {
				newChannel.Reject(ssh.UnknownChannelType, "only "+PortChannelType+" channels are supported")
				continue
			}

			channel, requests, err := newChannel.Accept()
			if err != nil {
				s.logger.Printf("sshserver: channel accept failed: %v", err)
				continue
			}
			go ssh.DiscardRequests(requests)

			go func() {
				port := wrapChannel(channel, nil)
				defer port.Close()
				handler(sshConn, port)
			}()
		}
	}
}
