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

// Package radiomodel implements the per-node Radio Model: visible
// Receiving/Transmitting state, the internal turnaround phases that
// mediate transitions between them, active-reception bookkeeping,
// collision detection, and SNR-threshold acceptance. It replaces ot-ns's
// global RadioModelMutualInterference (one shared object simulating
// every node's channel at once) with one Model instance exclusively
// owned by each node worker: no shared mutable state between workers,
// each worker owns its radio exclusively.
//
// A Model never touches a channel or a goroutine; it is a pure state
// machine driven by Dispatch and returns the LocalEvents and GlobalEvents
// its caller (the node worker) must act on.
package radiomodel

import (
	"fmt"

	"github.com/meshcore-sim/mc-ns/event"
	"github.com/meshcore-sim/mc-ns/radio"
	"github.com/meshcore-sim/mc-ns/simtime"
)

// phase is the radio's internal sub-state, finer-grained than the
// visible Receiving/Transmitting state machine.
type phase uint8

const (
	phaseReceiving phase = iota
	phaseTxTurnaround
	phaseTransmitting
	phaseRxTurnaround
)

// receptionKey identifies one in-flight ActiveReception. Keying on
// packetId alone is not sufficient: two different transmitters stamp
// their packets from their own independent nextPacketId counters, so
// two genuinely distinct, concurrently-arriving transmissions can carry
// the same packetId. Including Source keeps them from colliding in
// activeReceptions.
type receptionKey struct {
	Source   simtime.NodeId
	PacketId simtime.PacketId
}

// ActiveReception is a reception in progress at this node.
// Multiple may coexist; each is destroyed at its EndTime.
type ActiveReception struct {
	Source          simtime.NodeId
	PacketId        simtime.PacketId
	Packet          radio.Packet
	StartTime       simtime.SimTime
	EndTime         simtime.SimTime
	SnrDb           radio.DbValue
	RssiDbm         radio.DbValue
	FrequencyHz     uint64
	SpreadingFactor int
	Collided        bool
}

func (a ActiveReception) key() receptionKey {
	return receptionKey{Source: a.Source, PacketId: a.PacketId}
}

func (a ActiveReception) overlaps(b ActiveReception) bool {
	return a.StartTime < b.EndTime && b.StartTime < a.EndTime
}

// txRecord is this radio's own bookkeeping of its in-flight transmission,
// independent of the coordinator's transmitRecord (which only schedules
// the TransmitEnd teardown event).
type txRecord struct {
	packetId  simtime.PacketId
	packet    radio.Packet
	params    radio.Params
	startTime simtime.SimTime
	endTime   simtime.SimTime
}

type pendingTxRequest struct {
	packet radio.Packet
	params radio.Params
}

// Output collects the events a Model operation produces: LocalEvents go
// back onto the owning node's local queue, GlobalEvents are bubbled up
// through the worker to the coordinator (only TransmitAir ever appears
// here).
type Output struct {
	Local  []event.LocalEvent
	Global []event.GlobalEvent
}

func (o *Output) local(ev event.LocalEvent)   { o.Local = append(o.Local, ev) }
func (o *Output) global(ev event.GlobalEvent) { o.Global = append(o.Global, ev) }

// Model is one node's exclusively-owned radio state machine.
type Model struct {
	NodeId simtime.NodeId

	phase        phase
	stateVersion uint64

	activeReceptions map[receptionKey]*ActiveReception
	liveTx           *txRecord
	pendingTx        *pendingTxRequest

	nextPacketId simtime.PacketId
}

// New returns an idle Model in the Receiving state for nodeId.
func New(nodeId simtime.NodeId) *Model {
	return &Model{
		NodeId:           nodeId,
		phase:            phaseReceiving,
		activeReceptions: make(map[receptionKey]*ActiveReception),
	}
}

// State returns the visible radio state and its version counter.
func (m *Model) State() (event.RadioState, uint64) {
	if m.phase == phaseTransmitting || m.phase == phaseRxTurnaround {
		return event.RadioStateTransmitting, m.stateVersion
	}
	return event.RadioStateReceiving, m.stateVersion
}

// Dispatch routes one LocalEvent addressed to the radio model to the
// matching handler. It panics on a Kind the radio model never owns,
// since that indicates the worker mis-routed an event.
func (m *Model) Dispatch(ev event.LocalEvent) Output {
	switch ev.Kind {
	case event.KindTxStartRequested:
		return m.RequestTx(ev.Time, ev.Packet, ev.Params)
	case event.KindTxTurnaroundDone:
		return m.handleTxTurnaroundDone(ev)
	case event.KindTxEnd:
		return m.handleTxEnd(ev)
	case event.KindRxTurnaroundDone:
		return m.handleRxTurnaroundDone(ev)
	case event.KindReceiveAir:
		return m.ReceiveAir(ev.Time, ev.Source, ev.Packet, ev.Params, ev.EndTime, ev.SnrDb, ev.RssiDbm, ev.PacketId)
	case event.KindReceiveEnd:
		return m.ReceiveEnd(ev.Time, ev.Source, ev.PacketId)
	default:
		panic(fmt.Sprintf("radiomodel: node %d cannot dispatch event kind %s", m.NodeId, ev.Kind))
	}
}

// RequestTx implements request_tx. If the radio is already
// transmitting or in either turnaround, the request is queued: firmware
// is trusted not to over-request, so one pending slot is sufficient. A
// second request arriving while one is already queued indicates the
// firmware violated that contract and is a fatal defect.
func (m *Model) RequestTx(now simtime.SimTime, pkt radio.Packet, params radio.Params) Output {
	if m.phase != phaseReceiving {
		if m.pendingTx != nil {
			panic(fmt.Sprintf("radiomodel: node %d received a second TX request while one was already pending", m.NodeId))
		}
		m.pendingTx = &pendingTxRequest{packet: pkt, params: params}
		return Output{}
	}
	return m.beginTxTurnaround(now, pkt, params)
}

func (m *Model) beginTxTurnaround(now simtime.SimTime, pkt radio.Packet, params radio.Params) Output {
	m.phase = phaseTxTurnaround
	var out Output
	out.local(event.NewTxTurnaroundDone(now.Add(simtime.SimTime(params.RxToTxTurnaround)), pkt, params))
	return out
}

func (m *Model) handleTxTurnaroundDone(ev event.LocalEvent) Output {
	now := ev.Time
	m.phase = phaseTransmitting
	m.stateVersion++

	m.nextPacketId++
	packetId := m.nextPacketId
	pkt := ev.Packet
	pkt.Id = uint64(packetId)
	endTime := now.Add(simtime.SimTime(radio.Airtime(pkt.Len(), ev.Params)))
	m.liveTx = &txRecord{
		packetId:  packetId,
		packet:    pkt,
		params:    ev.Params,
		startTime: now,
		endTime:   endTime,
	}

	state, version := m.State()
	var out Output
	out.local(event.NewRadioStateChange(now, state, version))
	out.local(event.NewTxEnd(endTime, packetId))
	out.global(event.NewTransmitAir(now, m.NodeId, pkt, ev.Params, endTime, packetId))
	return out
}

func (m *Model) handleTxEnd(ev event.LocalEvent) Output {
	now := ev.Time
	params := radio.DefaultParams()
	if m.liveTx != nil {
		params = m.liveTx.params
	}
	m.liveTx = nil
	m.phase = phaseRxTurnaround

	var out Output
	out.local(event.NewRxTurnaroundDone(now.Add(simtime.SimTime(params.TxToRxTurnaround))))
	return out
}

func (m *Model) handleRxTurnaroundDone(ev event.LocalEvent) Output {
	now := ev.Time
	m.phase = phaseReceiving
	m.stateVersion++

	state, version := m.State()
	var out Output
	out.local(event.NewRadioStateChange(now, state, version))

	if m.pendingTx != nil {
		pending := m.pendingTx
		m.pendingTx = nil
		resumed := m.beginTxTurnaround(now, pending.packet, pending.params)
		out.Local = append(out.Local, resumed.Local...)
		out.Global = append(out.Global, resumed.Global...)
	}
	return out
}

// ReceiveAir implements receive_air: an incoming
// transmission arriving from the Graph Router. If the radio is not idly
// Receiving (busy transmitting or in either turnaround), it silently
// drops the arrival — the radio cannot receive while busy. packetId is
// the id the transmitter stamped onto the packet in handleTxTurnaroundDone,
// threaded here through TransmitAir/ReceiveAir rather than read back off
// pkt.Id, so it is available even if firmware never sets Id itself.
func (m *Model) ReceiveAir(now simtime.SimTime, source simtime.NodeId, pkt radio.Packet, params radio.Params, endTime simtime.SimTime, snrDb, rssiDbm radio.DbValue, packetId simtime.PacketId) Output {
	if m.phase != phaseReceiving {
		return Output{}
	}

	incoming := &ActiveReception{
		Source:          source,
		PacketId:        packetId,
		Packet:          pkt,
		StartTime:       now,
		EndTime:         endTime,
		SnrDb:           snrDb,
		RssiDbm:         rssiDbm,
		FrequencyHz:     params.FrequencyHz,
		SpreadingFactor: params.SpreadingFactor,
	}

	for _, existing := range m.activeReceptions {
		if existing.FrequencyHz == incoming.FrequencyHz && existing.overlaps(*incoming) {
			existing.Collided = true
			incoming.Collided = true
		}
	}
	m.activeReceptions[incoming.key()] = incoming

	var out Output
	out.local(event.NewReceiveEnd(endTime, source, packetId))
	return out
}

// ReceiveEnd implements receive_end: tear down the
// ActiveReception identified by (source, packetId) and, if it survived
// uncollided and at or above the spreading factor's sensitivity
// threshold, deliver it to the firmware adapter via RadioRxDeliver.
func (m *Model) ReceiveEnd(now simtime.SimTime, source simtime.NodeId, packetId simtime.PacketId) Output {
	key := receptionKey{Source: source, PacketId: packetId}
	ar, ok := m.activeReceptions[key]
	if !ok {
		return Output{}
	}
	delete(m.activeReceptions, key)

	var out Output
	if !ar.Collided && ar.SnrDb >= radio.SensitivityThresholdDb(ar.SpreadingFactor) {
		out.local(event.NewRadioRxDeliver(now, ar.Packet, ar.SnrDb, ar.RssiDbm))
	}
	return out
}

// ActiveReceptionCount returns the number of in-flight receptions, for
// tests asserting FIFO/teardown bounds.
func (m *Model) ActiveReceptionCount() int {
	return len(m.activeReceptions)
}
