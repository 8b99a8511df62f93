package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ledzpl/tabsync/internal/coord"
	"github.com/ledzpl/tabsync/internal/protocol"
	"github.com/ledzpl/tabsync/pkg/sshserver"
	"github.com/ledzpl/tabsync/pkg/wsport"
)

func main() {
	addr := flag.String("addr", ":2222", "TCP address for the SSH port listener")
	hostKeyPath := flag.String("host-key", "configs/ssh_host_ed25519", "Path to the SSH host private key (generated if missing, empty for an ephemeral key)")
	httpAddr := flag.String("http-addr", ":8080", "TCP address for the WebSocket port listener (empty disables it)")
	wsPath := flag.String("ws-path", "/port", "HTTP path serving WebSocket ports")
	origins := flag.String("origins", "", "Comma-separated WebSocket origins to accept (empty accepts any)")
	name := flag.String("name", protocol.DefaultWorkerName, "Worker label stamped on outgoing messages")
	outbox := flag.Int("outbox", coord.DefaultOutboxSize, "Frames buffered per connection before new ones are dropped")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	signer, err := sshserver.LoadOrGenerateSigner(*hostKeyPath)
	if err != nil {
		logger.Fatalf("failed to prepare host key: %v", err)
	}
	logger.Printf("host key %s", ssh.FingerprintSHA256(signer.PublicKey()))
	logger.Printf("known_hosts entry for tabclient -known-hosts: %s", sshserver.KnownHostsLine(*addr, signer))

	coordinator := coord.New(
		coord.WithName(*name),
		coord.WithLogger(logger),
		coord.WithOutboxSize(*outbox),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *httpAddr != "" {
		go serveWebSocket(ctx, *httpAddr, *wsPath, splitOrigins(*origins), coordinator, logger)
	}

	server := sshserver.New(*addr, signer, logger)
	err = server.ListenAndServe(ctx, func(_ *ssh.ServerConn, port *sshserver.Channel) {
		if err := coordinator.Serve(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("ssh port ended: %v", err)
		}
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("server stopped with error: %v", err)
	}
}

func serveWebSocket(ctx context.Context, addr, path string, origins []string, coordinator *coord.Coordinator, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, wsport.NewHandler(func(r *http.Request, conn *wsport.Conn) {
		if err := coordinator.Serve(r.Context(), conn); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("websocket port ended: %v", err)
		}
	}, origins, logger))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("websocket listener shutdown: %v", err)
		}
	}()

	logger.Printf("wsport: listening on %s%s", addr, path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("websocket listener stopped: %v", err)
	}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
