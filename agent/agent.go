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

// Package agent defines the node-local synthesized-traffic collaborator:
// another node-local entity consuming the same event interface firmware
// does. An Agent sits beside the firmware adapter on a node worker: it
// is stepped at the same virtual times and may inject SerialRxFromAgent
// bytes into the node's local queue, exactly the way external serial
// bytes would arrive, but without the bridge's non-determinism.
package agent

import (
	"github.com/meshcore-sim/mc-ns/event"
	"github.com/meshcore-sim/mc-ns/simtime"
)

// Agent is the narrow interface a node worker drives its optional
// synthesized-traffic source through. It never touches the radio or
// firmware directly; any traffic it wants delivered goes through the
// same SerialRxFromAgent LocalEvent the firmware adapter consumes.
type Agent interface {
	// Step advances the agent to now and returns any LocalEvents it
	// wishes to inject (typically SerialRxFromAgent), plus the next
	// virtual time it wants to be stepped again, or nil if it has none.
	Step(now simtime.SimTime) (events []event.LocalEvent, nextWake *simtime.SimTime)
}

// Periodic is an illustrative Agent that injects a fixed payload onto the
// node's serial input every Interval, starting at Offset. It models a
// simple synthesized traffic source — e.g. a beacon generator driving
// firmware under test with regular application-layer messages — without
// encoding any MeshCore routing semantics itself (that lives in firmware).
type Periodic struct {
	Interval simtime.SimTime
	Offset   simtime.SimTime
	Payload  []byte

	nextFire simtime.SimTime
	started  bool
}

// NewPeriodic returns a Periodic agent that fires every interval,
// starting at offset, injecting a copy of payload each time.
func NewPeriodic(offset, interval simtime.SimTime, payload []byte) *Periodic {
	data := make([]byte, len(payload))
	copy(data, payload)
	return &Periodic{Interval: interval, Offset: offset, Payload: data}
}

// Step fires once per Interval once now has reached the next scheduled
// fire time, possibly firing more than once if now has jumped past
// several intervals (a worker tick can cover an arbitrarily large
// advance_to).
func (p *Periodic) Step(now simtime.SimTime) ([]event.LocalEvent, *simtime.SimTime) {
	if !p.started {
		p.nextFire = p.Offset
		p.started = true
	}

	var out []event.LocalEvent
	for p.nextFire <= now {
		data := make([]byte, len(p.Payload))
		copy(data, p.Payload)
		out = append(out, event.NewSerialRxFromAgent(p.nextFire, data))
		p.nextFire = p.nextFire.Add(p.Interval)
	}

	wake := p.nextFire
	return out, &wake
}
