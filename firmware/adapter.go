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

package firmware

import (
	"github.com/pkg/errors"

	"github.com/meshcore-sim/mc-ns/event"
	"github.com/meshcore-sim/mc-ns/radio"
	"github.com/meshcore-sim/mc-ns/simtime"
)

// RxFifoDepth is the bounded depth of the firmware-facing RX FIFO.
// RadioRxDeliver arrivals beyond this depth are dropped here, at the
// adapter boundary, not inside the radio model.
const RxFifoDepth = 4

type pendingRx struct {
	packet  radio.Packet
	snrDb   radio.DbValue
	rssiDbm radio.DbValue
}

// StepOutput collects what one Adapter.Step call produced: LocalEvents to
// push back onto the node's queue (TxStartRequested, Timer), bytes to
// publish to the agent/external bridge, and lifecycle signals.
type StepOutput struct {
	Local      []event.LocalEvent
	SerialTx   []byte
	Rebooted   bool
	PoweredOff bool
	Err        error
}

// Adapter wraps one node's opaque Entity and translates between it and
// the local event stream.
type Adapter struct {
	NodeId simtime.NodeId

	entity       Entity
	baseRtcSecs  uint64
	rxPending    []pendingRx
	nextTimerSeq uint64
}

// New returns an Adapter driving entity for nodeId, with its virtual RTC
// clock starting at baseRtcSeconds.
func New(nodeId simtime.NodeId, entity Entity, baseRtcSeconds uint64) *Adapter {
	return &Adapter{NodeId: nodeId, entity: entity, baseRtcSecs: baseRtcSeconds}
}

// Dispatch routes one LocalEvent addressed to the firmware adapter.
// RadioRxDeliver is FIFO-bounded here; everything else is
// translated directly into an Entity call.
func (a *Adapter) Dispatch(ev event.LocalEvent) {
	switch ev.Kind {
	case event.KindRadioRxDeliver:
		if len(a.rxPending) >= RxFifoDepth {
			return
		}
		a.rxPending = append(a.rxPending, pendingRx{packet: ev.Packet, snrDb: ev.SnrDb, rssiDbm: ev.RssiDbm})
	case event.KindRadioStateChange:
		a.entity.NotifyStateChange(ev.StateVersion)
	case event.KindSerialRxFromAgent:
		a.entity.InjectSerialRx(ev.Bytes)
	default:
		panic("firmware: adapter cannot dispatch event kind " + ev.Kind.String())
	}
}

// NotifyTxComplete forwards the end of an outbound transmission the
// worker observed in the radio model to the firmware entity.
func (a *Adapter) NotifyTxComplete() {
	a.entity.NotifyTxComplete()
}

// Step drains any FIFO-bounded pending RX deliveries into the entity,
// then steps it to now and translates the YieldResult into a
// StepOutput.
func (a *Adapter) Step(now simtime.SimTime) StepOutput {
	for _, p := range a.rxPending {
		a.entity.InjectRadioRx(p.packet, p.snrDb, p.rssiDbm)
	}
	a.rxPending = a.rxPending[:0]

	millis := uint64(now) / 1000
	rtcSecs := a.baseRtcSecs + uint64(now)/1_000_000
	result := a.entity.Step(millis, rtcSecs)

	var out StepOutput
	switch result.Reason {
	case YieldRadioTxStart:
		out.Local = append(out.Local, event.NewTxStartRequested(now, result.TxPacket, result.TxParams))
	case YieldReboot:
		out.Rebooted = true
	case YieldPowerOff:
		out.PoweredOff = true
	case YieldError:
		out.Err = errors.Errorf("firmware: node %d yielded fatal error: %s", a.NodeId, result.ErrorMsg)
	}

	if len(result.SerialTx) > 0 {
		out.SerialTx = result.SerialTx
	}
	if result.WakeMillis != nil {
		wakeTime := simtime.SimTime(*result.WakeMillis) * 1000
		out.Local = append(out.Local, event.NewTimer(wakeTime, a.nextTimerSeq))
		a.nextTimerSeq++
	}
	return out
}
