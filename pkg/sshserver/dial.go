package sshserver

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyCallback verifies server keys against a known_hosts file. An empty
// path accepts any host key.
func HostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("sshserver: load known hosts %q: %w", knownHostsPath, err)
	}
	return callback, nil
}

// Dial connects to a server at addr and opens one port channel on a
// dedicated SSH connection. Closing the returned Channel closes the
// connection.
func Dial(ctx context.Context, addr, user string, hostKeys ssh.HostKeyCallback) (*Channel, error) {
	if hostKeys == nil {
		hostKeys = ssh.InsecureIgnoreHostKey()
	}

	var dialer net.Dialer
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sshserver: dial %q: %w", addr, err)
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		HostKeyCallback: hostKeys,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, cfg)
	if err != nil {
		tcpConn.Close()
		return nil, fmt.Errorf("sshserver: handshake with %q: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	ch, requests, err := client.OpenChannel(PortChannelType, nil)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("sshserver: open port channel: %w", err)
	}
	go ssh.DiscardRequests(requests)

	return wrapChannel(ch, client), nil
}
