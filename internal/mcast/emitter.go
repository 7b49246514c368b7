// Package mcast owns the UDP send sockets for multicast RTP and SAP
// traffic: one socket per flow, bound to a selectable outbound interface,
// with multicast TTL and loopback configured per RFC expectations.
package mcast

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"syscall"

	"golang.org/x/net/ipv4"
)

// Emitter owns one UDP sending socket bound to a specific multicast
// destination. Sends are single, non-blocking writes; dropped packets are
// never retransmitted, matching RTP's own loss semantics.
type Emitter struct {
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	dest   *net.UDPAddr
	logger *slog.Logger

	sendErrors atomic.Uint64
}

// NewEmitter opens a UDP socket bound to an unspecified local address,
// joins no group (this is a sender, not a receiver), sets the outbound
// multicast interface, TTL, and disables multicast loopback.
func NewEmitter(dest *net.UDPAddr, iface *net.Interface, ttl int, logger *slog.Logger) (*Emitter, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("opening multicast send socket: %w", err)
	}

	p := ipv4.NewPacketConn(conn)

	if iface != nil {
		if err := p.SetMulticastInterface(iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting multicast outbound interface %q: %w", iface.Name, err)
		}
	}
	if err := p.SetMulticastTTL(ttl); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting multicast ttl: %w", err)
	}
	if err := p.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("disabling multicast loopback: %w", err)
	}

	return &Emitter{
		conn:   conn,
		pconn:  p,
		dest:   dest,
		logger: logger.With("subsystem", "mcast-emitter", "dest", dest.String()),
	}, nil
}

// Send writes one packet to the destination. Errors other than a
// momentary EAGAIN are logged at warn level; all write errors increment
// the send-error counter and are returned to the caller so it can enforce
// the excessive-send-errors threshold, but Send itself never blocks and
// never retries.
func (e *Emitter) Send(pkt []byte) error {
	_, err := e.conn.WriteToUDP(pkt, e.dest)
	if err != nil {
		e.sendErrors.Add(1)
		if errors.Is(err, syscall.EAGAIN) {
			e.logger.Debug("transient send error", "error", err)
		} else {
			e.logger.Warn("send error", "error", err)
		}
		return err
	}
	return nil
}

// SendErrors returns the cumulative count of failed sends on this socket.
func (e *Emitter) SendErrors() uint64 {
	return e.sendErrors.Load()
}

// Close releases the underlying socket.
func (e *Emitter) Close() error {
	return e.conn.Close()
}
