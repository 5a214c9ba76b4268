// Copyright (c) 2024-2025, The MC-NS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES ARE DISCLAIMED.

// Package serialbridge implements the External Serial Bridge: for any
// node configured with an external serial port, inbound TCP bytes are
// forwarded to that node's worker as they arrive, and bytes the firmware
// adapter writes out are forwarded back to the TCP peer. Wall-clock
// arrival order is explicitly non-deterministic — unlike every other
// collaborator in this simulator, a Bridge is not part of the
// reproducible core and a run's trace must never depend on its exact
// timing. It is grounded on the
// meshtastic-message-relay example's internal/connection/tcp.go: a
// dial/accept loop, a read-deadline poll loop run in its own goroutine,
// and a mutex-guarded connected flag, adapted from an outbound dialer to
// an inbound per-node listener.
package serialbridge

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/meshcore-sim/mc-ns/logger"
	"github.com/meshcore-sim/mc-ns/simtime"
)

// readBufSize bounds one Read call; the bridge carries an unframed byte
// stream, not discrete packets, so this is purely an I/O chunk size.
const readBufSize = 4096

// readDeadline bounds how long one readLoop iteration blocks before
// re-checking for shutdown, mirroring the example's 100ms polling
// deadline.
const readDeadline = 100 * time.Millisecond

// Bridge owns the TCP listener for one node's external serial endpoint
// and bridges bytes between its single accepted peer and that node's
// worker.
type Bridge struct {
	nodeId   simtime.NodeId
	listener net.Listener

	// toWorker is the worker's External channel: inbound TCP bytes are
	// pushed here.
	toWorker chan<- []byte
	// fromWorker is read by the bridge's write loop: bytes the firmware
	// buffered for this node are forwarded to the TCP peer.
	fromWorker <-chan []byte

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	stopCh    chan struct{}
}

// Listen opens a TCP listener on addr for nodeId's serial endpoint. The
// bridge accepts exactly one peer at a time; a new connection replaces
// any previous one.
func Listen(nodeId simtime.NodeId, addr string, toWorker chan<- []byte, fromWorker <-chan []byte) (*Bridge, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		nodeId:     nodeId,
		listener:   ln,
		toWorker:   toWorker,
		fromWorker: fromWorker,
		stopCh:     make(chan struct{}),
	}, nil
}

// Addr returns the bound listener address, useful when Listen was given
// port 0.
func (b *Bridge) Addr() net.Addr { return b.listener.Addr() }

// Run accepts connections until Close is called. Cancelling ctx stops the
// read and write loops but not the accept loop; Run returns only once
// the listener is closed. Only one peer is bridged at a time; a second
// incoming connection preempts the first.
func (b *Bridge) Run(ctx context.Context) {
	go b.writeLoop(ctx)

	for {
		conn, err := b.listener.Accept()
		if err != nil {
			select {
			case <-b.stopCh:
				return
			default:
				logger.Warnf("serialbridge: node %d accept error: %v", b.nodeId, err)
				return
			}
		}
		b.adopt(conn)
		go b.readLoop(ctx, conn)
	}
}

func (b *Bridge) adopt(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.conn = conn
	b.connected = true
}

// readLoop pushes inbound bytes to toWorker as they arrive; it never
// blocks the node worker's goroutine since External is only ever read,
// never dispatched synchronously.
func (b *Bridge) readLoop(ctx context.Context, conn net.Conn) {
	buf := make([]byte, readBufSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case b.toWorker <- data:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			logger.Debugf("serialbridge: node %d read ended: %v", b.nodeId, err)
			b.disconnect(conn)
			return
		}
	}
}

// writeLoop forwards bytes the firmware produced to whichever peer is
// currently connected; bytes are dropped silently if nobody is connected,
// matching best-effort, non-deterministic delivery.
func (b *Bridge) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case data := <-b.fromWorker:
			b.mu.Lock()
			conn := b.conn
			b.mu.Unlock()
			if conn == nil {
				continue
			}
			if _, err := conn.Write(data); err != nil {
				logger.Debugf("serialbridge: node %d write failed: %v", b.nodeId, err)
			}
		}
	}
}

func (b *Bridge) disconnect(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == conn {
		b.connected = false
	}
}

// Connected reports whether a peer is currently attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Close stops accepting and closes any active connection.
func (b *Bridge) Close() error {
	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	b.connected = false
	return b.listener.Close()
}
