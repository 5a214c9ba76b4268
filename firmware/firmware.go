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

// Package firmware defines the opaque firmware ABI and the Adapter that
// drives it. The firmware entity itself is an external collaborator —
// unmodified code under test, reachable only through this narrow
// capability surface — exactly the role the opaque per-node processes
// play in ot-ns, except here the boundary is a Go interface instead of
// a UDP-connected OS subprocess: firmware is an opaque Go-level
// capability interface, not a subprocess protocol.
package firmware

import (
	"io"

	"github.com/meshcore-sim/mc-ns/radio"
)

// YieldReason is the cooperative reason an Entity.Step call returned
// control to the simulator.
type YieldReason uint8

const (
	YieldIdle YieldReason = iota
	YieldRadioTxStart
	YieldReboot
	YieldPowerOff
	YieldError
)

func (r YieldReason) String() string {
	switch r {
	case YieldRadioTxStart:
		return "RadioTxStart"
	case YieldReboot:
		return "Reboot"
	case YieldPowerOff:
		return "PowerOff"
	case YieldError:
		return "Error"
	default:
		return "Idle"
	}
}

// YieldResult is everything one Entity.Step call reports back: the
// yield reason, the earliest time the firmware next wishes to run, an
// optional outbound packet when yielding RadioTxStart, any bytes it
// wants written to serial, and an error message when yielding Error.
type YieldResult struct {
	Reason     YieldReason
	WakeMillis *uint64

	TxPacket radio.Packet
	TxParams radio.Params

	SerialTx []byte
	ErrorMsg string
}

// Filesystem is the per-node, in-memory filesystem the firmware entity is
// given: preserved across Reboot, destroyed with the node.
type Filesystem interface {
	Read(path string) ([]byte, bool)
	Write(path string, data []byte)
	Exists(path string) bool
	Remove(path string)
}

// Entity is the opaque firmware capability surface.
// create/destroy map onto construction and io.Closer.Close; reboot is a
// distinct operation since filesystem state survives it.
type Entity interface {
	io.Closer

	// Step advances the firmware to the given virtual time and returns
	// what it yielded.
	Step(virtualMillis uint64, virtualRtcSeconds uint64) YieldResult

	// InjectRadioRx delivers one received packet to the firmware's radio
	// queue. The adapter is responsible for FIFO bounding before this is
	// ever called.
	InjectRadioRx(pkt radio.Packet, snrDb, rssiDbm radio.DbValue)

	// InjectSerialRx delivers externally- or agent-sourced serial bytes.
	InjectSerialRx(data []byte)

	// NotifyTxComplete signals the end of an outbound transmission this
	// entity requested.
	NotifyTxComplete()

	// NotifyStateChange wakes a firmware that is polling for a radio
	// state transition.
	NotifyStateChange(version uint64)

	// GetPublicKey returns the node's identity public key.
	GetPublicKey() [32]byte

	// Reboot reinitializes the entity's runtime state while preserving
	// its Filesystem.
	Reboot(cfg any) error

	// Filesystem returns this entity's per-node filesystem.
	Filesystem() Filesystem
}

// Factory constructs an Entity from node-type-specific configuration.
// The concrete firmware implementation — the code under test —
// supplies the Factory; this package never constructs one itself.
type Factory func(cfg any) (Entity, error)
