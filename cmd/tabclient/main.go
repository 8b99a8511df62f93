package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ledzpl/tabsync/internal/adapter"
	"github.com/ledzpl/tabsync/internal/protocol"
	"github.com/ledzpl/tabsync/pkg/sshserver"
	"github.com/ledzpl/tabsync/pkg/wsport"
)

func main() {
	sshAddr := flag.String("ssh", "localhost:2222", "SSH address of the coordinator")
	wsURL := flag.String("ws", "", "WebSocket URL of the coordinator (overrides -ssh)")
	user := flag.String("user", "tab", "SSH user name")
	knownHosts := flag.String("known-hosts", "", "known_hosts file used to verify the coordinator (empty accepts any key)")
	name := flag.String("name", protocol.DefaultWorkerName, "Worker label sent with every message")
	interval := flag.Duration("interval", adapter.DefaultInterval, "Heartbeat interval")
	hidden := flag.Bool("hidden", false, "Start as a hidden client")
	events := flag.Int("events", 16, "Roster and broadcast notifications buffered before new ones are dropped")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := dial(ctx, *wsURL, *sshAddr, *user, *knownHosts)
	if err != nil {
		logger.Fatalf("coordinator unavailable: %v", err)
	}

	client, err := adapter.Connect(conn,
		adapter.WithName(*name),
		adapter.WithInterval(*interval),
		adapter.WithHidden(*hidden),
		adapter.WithEventBuffer(*events),
		adapter.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("failed to start adapter: %v", err)
	}
	defer client.Close()

	go printEvents(client, logger)
	go readCommands(client, logger, cancel)

	select {
	case <-ctx.Done():
	case <-client.Done():
		logger.Printf("coordinator closed the connection")
	}
}

func dial(ctx context.Context, wsURL, sshAddr, user, knownHosts string) (protocol.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if wsURL != "" {
		conn, err := wsport.Dial(dialCtx, wsURL)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	hostKeys, err := sshserver.HostKeyCallback(knownHosts)
	if err != nil {
		return nil, err
	}
	conn, err := sshserver.Dial(dialCtx, sshAddr, user, hostKeys)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func printEvents(client *adapter.Adapter, logger *log.Logger) {
	for ev := range client.Events() {
		switch ev.Kind {
		case adapter.EventRoster:
			logger.Printf("roster: %d connected, primary=%t", len(ev.Roster), client.IsPrimary())
		case adapter.EventBroadcast:
			logger.Printf("broadcast: %s", ev.Payload)
		}
	}
}

// readCommands handles stdin: hide, show, roster, quit; any other line is
// broadcast as a string payload.
func readCommands(client *adapter.Adapter, logger *log.Logger, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "hide":
			client.SetHidden(true)
		case "show":
			client.SetHidden(false)
		case "roster":
			id, _ := client.ConnectionID()
			for _, c := range client.Roster() {
				logger.Printf("connection %d hidden=%t primary=%t pings=%d self=%t",
					c.ConnectionID, c.IsTabHidden, c.IsPrimary, len(c.Pings), c.ConnectionID == id)
			}
		case "quit":
			quit()
			return
		default:
			if err := client.Broadcast(line); err != nil {
				logger.Printf("broadcast failed: %v", err)
			}
		}
	}
}
