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

// Package event defines the two tagged-union event shapes the simulator
// passes around: LocalEvent, which lives on one node's local min-heap
// (queue.Heap), and GlobalEvent, which lives on the coordinator's global
// event queue. Unlike ot-ns's event.Event, these never cross a wire: there
// is no Serialize/Deserialize here, since firmware is an in-process Go
// capability interface, not a subprocess talking a byte protocol.
package event

import (
	"fmt"

	"github.com/meshcore-sim/mc-ns/radio"
	"github.com/meshcore-sim/mc-ns/simtime"
)

// Kind identifies the variant carried by a LocalEvent or GlobalEvent. The
// zero value is intentionally invalid so a zero-valued Event is never
// mistaken for a real one.
type Kind uint8

const (
	KindInvalid Kind = iota

	// LocalEvent kinds.
	KindTimer
	KindRadioRxDeliver
	KindRadioStateChange
	KindSerialRxFromAgent
	KindTxStartRequested
	KindReceiveAir
	KindReceiveEnd

	// Internal radio-model turnaround phases. These never
	// leave the radio model; the worker routes them straight back to it.
	KindTxTurnaroundDone
	KindTxEnd
	KindRxTurnaroundDone

	// GlobalEvent kinds.
	KindTransmitAir
	KindTransmitEnd
	KindSimulationEnd
)

func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "Timer"
	case KindRadioRxDeliver:
		return "RadioRxDeliver"
	case KindRadioStateChange:
		return "RadioStateChange"
	case KindSerialRxFromAgent:
		return "SerialRxFromAgent"
	case KindTxStartRequested:
		return "TxStartRequested"
	case KindReceiveAir:
		return "ReceiveAir"
	case KindReceiveEnd:
		return "ReceiveEnd"
	case KindTxTurnaroundDone:
		return "TxTurnaroundDone"
	case KindTxEnd:
		return "TxEnd"
	case KindRxTurnaroundDone:
		return "RxTurnaroundDone"
	case KindTransmitAir:
		return "TransmitAir"
	case KindTransmitEnd:
		return "TransmitEnd"
	case KindSimulationEnd:
		return "SimulationEnd"
	default:
		return "Invalid"
	}
}

// RadioState mirrors radiomodel's visible state machine; duplicated here
// (rather than imported) to keep event a leaf package with no dependency
// on radiomodel, avoiding an import cycle since radiomodel emits events.
type RadioState uint8

const (
	RadioStateReceiving RadioState = iota
	RadioStateTransmitting
)

func (s RadioState) String() string {
	if s == RadioStateTransmitting {
		return "Transmitting"
	}
	return "Receiving"
}

// LocalEvent is one entry on a node's local time-ordered queue. Seq is
// the monotonic insertion sequence used as the tie breaker among events
// with equal Time, assigned by the queue on push.
type LocalEvent struct {
	Time simtime.SimTime
	Seq  uint64
	Kind Kind

	// WakeId identifies a Timer event so a worker/firmware adapter can
	// recognize which scheduled wake fired.
	WakeId uint64

	// Packet/params/link fields, populated depending on Kind.
	Source   simtime.NodeId
	Packet   radio.Packet
	Params   radio.Params
	EndTime  simtime.SimTime
	SnrDb    radio.DbValue
	RssiDbm  radio.DbValue
	PacketId simtime.PacketId

	// RadioStateChange fields.
	State        RadioState
	StateVersion uint64

	// SerialRxFromAgent payload.
	Bytes []byte
}

func (e LocalEvent) String() string {
	return fmt.Sprintf("LocalEvent{%s t=%d seq=%d src=%d pid=%d}", e.Kind, e.Time, e.Seq, e.Source, e.PacketId)
}

// NewTimer builds a Timer LocalEvent waking at t.
func NewTimer(t simtime.SimTime, wakeId uint64) LocalEvent {
	return LocalEvent{Time: t, Kind: KindTimer, WakeId: wakeId}
}

// NewReceiveAir builds a ReceiveAir LocalEvent, the form the Graph
// Router synthesizes for each reachable destination of a TransmitAir.
// packetId carries the transmitter-stamped id through from the
// originating TransmitAir, so the receiving radio model can key its
// ActiveReception on it rather than on the packet's own (firmware-
// supplied, not guaranteed unique) Id field.
func NewReceiveAir(arrivalTime simtime.SimTime, source simtime.NodeId, pkt radio.Packet, params radio.Params, endTime simtime.SimTime, snrDb, rssiDbm radio.DbValue, packetId simtime.PacketId) LocalEvent {
	return LocalEvent{
		Time:     arrivalTime,
		Kind:     KindReceiveAir,
		Source:   source,
		Packet:   pkt,
		Params:   params,
		EndTime:  endTime,
		SnrDb:    snrDb,
		RssiDbm:  rssiDbm,
		PacketId: packetId,
	}
}

// NewReceiveEnd builds a ReceiveEnd LocalEvent tearing down the
// ActiveReception identified by (source, packetId) at t.
func NewReceiveEnd(t simtime.SimTime, source simtime.NodeId, packetId simtime.PacketId) LocalEvent {
	return LocalEvent{Time: t, Kind: KindReceiveEnd, Source: source, PacketId: packetId}
}

// NewRadioStateChange builds a RadioStateChange LocalEvent.
func NewRadioStateChange(t simtime.SimTime, state RadioState, version uint64) LocalEvent {
	return LocalEvent{Time: t, Kind: KindRadioStateChange, State: state, StateVersion: version}
}

// NewRadioRxDeliver builds a RadioRxDeliver LocalEvent carrying a
// successfully-received packet up to the firmware adapter.
func NewRadioRxDeliver(t simtime.SimTime, pkt radio.Packet, snrDb, rssiDbm radio.DbValue) LocalEvent {
	return LocalEvent{Time: t, Kind: KindRadioRxDeliver, Packet: pkt, SnrDb: snrDb, RssiDbm: rssiDbm}
}

// NewTxStartRequested builds a TxStartRequested LocalEvent, raised by the
// firmware adapter after a step yields RadioTxStart.
func NewTxStartRequested(t simtime.SimTime, pkt radio.Packet, params radio.Params) LocalEvent {
	return LocalEvent{Time: t, Kind: KindTxStartRequested, Packet: pkt, Params: params}
}

// NewSerialRxFromAgent builds a SerialRxFromAgent LocalEvent carrying
// bytes synthesized by an agent collaborator.
func NewSerialRxFromAgent(t simtime.SimTime, data []byte) LocalEvent {
	return LocalEvent{Time: t, Kind: KindSerialRxFromAgent, Bytes: data}
}

// NewTxTurnaroundDone builds the internal LocalEvent that fires when the
// RX-to-TX turnaround scheduled by a RequestTx completes. It carries the
// packet/params the radio is about to transmit.
func NewTxTurnaroundDone(t simtime.SimTime, pkt radio.Packet, params radio.Params) LocalEvent {
	return LocalEvent{Time: t, Kind: KindTxTurnaroundDone, Packet: pkt, Params: params}
}

// NewTxEnd builds the internal LocalEvent marking the end of a
// transmission in flight.
func NewTxEnd(t simtime.SimTime, packetId simtime.PacketId) LocalEvent {
	return LocalEvent{Time: t, Kind: KindTxEnd, PacketId: packetId}
}

// NewRxTurnaroundDone builds the internal LocalEvent that fires when the
// TX-to-RX turnaround following a transmission completes.
func NewRxTurnaroundDone(t simtime.SimTime) LocalEvent {
	return LocalEvent{Time: t, Kind: KindRxTurnaroundDone}
}

// GlobalEvent is one entry on the coordinator's global event queue:
// transmission announcements, transmission-end bookkeeping markers, and
// the end-of-run marker. Ordering ties break by (Time, Source, Kind).
type GlobalEvent struct {
	Time     simtime.SimTime
	Kind     Kind
	Source   simtime.NodeId
	Packet   radio.Packet
	Params   radio.Params
	EndTime  simtime.SimTime
	PacketId simtime.PacketId
}

func (e GlobalEvent) String() string {
	return fmt.Sprintf("GlobalEvent{%s t=%d src=%d pid=%d}", e.Kind, e.Time, e.Source, e.PacketId)
}

// NewTransmitAir builds the GlobalEvent announcing a node has begun
// transmitting, to be routed by the Graph Router.
func NewTransmitAir(t simtime.SimTime, source simtime.NodeId, pkt radio.Packet, params radio.Params, endTime simtime.SimTime, packetId simtime.PacketId) GlobalEvent {
	return GlobalEvent{Time: t, Kind: KindTransmitAir, Source: source, Packet: pkt, Params: params, EndTime: endTime, PacketId: packetId}
}

// NewTransmitEnd builds the GlobalEvent marking a TransmitRecord for
// teardown at its end_time.
func NewTransmitEnd(t simtime.SimTime, source simtime.NodeId, packetId simtime.PacketId) GlobalEvent {
	return GlobalEvent{Time: t, Kind: KindTransmitEnd, Source: source, PacketId: packetId}
}

// NewSimulationEnd builds the GlobalEvent marking run_duration reached.
func NewSimulationEnd(t simtime.SimTime) GlobalEvent {
	return GlobalEvent{Time: t, Kind: KindSimulationEnd}
}

// Less orders two GlobalEvents by (Time, Source, Kind), the total order
// used to break ties.
func (e GlobalEvent) Less(other GlobalEvent) bool {
	if e.Time != other.Time {
		return e.Time < other.Time
	}
	if e.Source != other.Source {
		return e.Source < other.Source
	}
	return e.Kind < other.Kind
}
