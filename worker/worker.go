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

// Package worker implements the per-node Node Worker: a single goroutine
// that owns one node's radio model, firmware adapter, optional agent,
// and local event queue exclusively, and that talks to the coordinator
// only through typed command/report channels — no shared mutable state
// crosses a worker boundary. This mirrors the role ot-ns's per-node
// goroutine in dispatcher.go plays, but trades its UDP-framed subprocess
// protocol for direct in-process Dispatch calls against radiomodel.Model
// and firmware.Adapter, since firmware here is an opaque Go capability
// interface, not a subprocess.
package worker

import (
	"context"

	"github.com/meshcore-sim/mc-ns/agent"
	"github.com/meshcore-sim/mc-ns/event"
	"github.com/meshcore-sim/mc-ns/firmware"
	"github.com/meshcore-sim/mc-ns/logger"
	"github.com/meshcore-sim/mc-ns/queue"
	"github.com/meshcore-sim/mc-ns/radiomodel"
	"github.com/meshcore-sim/mc-ns/simtime"
	"github.com/meshcore-sim/mc-ns/trace"
)

// CommandKind identifies which of the three commands a worker accepts.
type CommandKind uint8

const (
	CmdAdvanceTime CommandKind = iota
	CmdReceiveAir
	CmdShutdown
)

// Command is one message sent from the coordinator to a worker's command
// channel.
type Command struct {
	Kind       CommandKind
	TargetTime simtime.SimTime  // CmdAdvanceTime
	ReceiveAir event.LocalEvent // CmdReceiveAir, Kind must be KindReceiveAir
}

// ReportKind identifies which reply a worker sent back.
type ReportKind uint8

const (
	ReportTimeReached ReportKind = iota
	ReportShutdownAck
	ReportFatal
)

// Report is one message sent from a worker back to the coordinator.
type Report struct {
	Kind        ReportKind
	NodeId      simtime.NodeId
	ReachedTime simtime.SimTime
	// NextWakeTime is nil when the worker has no pending local event or
	// firmware/agent wake request.
	NextWakeTime *simtime.SimTime
	// TransmitAir carries any TransmitAir GlobalEvents produced while
	// draining this tick, for the coordinator to route through the
	// Graph Router.
	TransmitAir []event.GlobalEvent
	// TraceRecords carries this tick's batch of deterministic trace
	// records, flushed once per TimeReached with no
	// per-event locking.
	TraceRecords []trace.Record
	// Err is set only for ReportFatal, which a firmware Error yield
	// produces. The coordinator aborts the run on this.
	Err error
}

// Worker owns one simulated node's radio model, firmware adapter,
// optional traffic agent, and local event queue, and runs as exactly one
// goroutine for the life of the run.
type Worker struct {
	NodeId simtime.NodeId

	radio *radiomodel.Model
	fw    *firmware.Adapter
	ag    agent.Agent
	queue *queue.Heap
	trace *trace.Batch

	// Commands is the single-producer (coordinator), single-consumer
	// (this worker) command channel.
	Commands chan Command
	// External carries non-deterministic inbound bytes from this node's
	// TCP serial bridge, if one is configured; nil if not.
	External chan []byte
	// SerialOut receives bytes the firmware adapter buffered from a
	// step, to forward to the external bridge; nil if no bridge is
	// configured for this node. The agent does not receive these bytes.
	SerialOut chan<- []byte

	// Reports is the multi-producer (every worker), single-consumer
	// (coordinator) report channel, shared across all workers in a run.
	Reports chan<- Report

	lastTime simtime.SimTime
}

// New returns a Worker for nodeId, ready to Run. commandBuf sizes the
// Commands channel. The coordinator may send CmdReceiveAir to a worker
// whose own report for the tick it has not read yet; with a small buffer
// that send just waits until the worker has sent its report and is back
// in its select loop.
func New(nodeId simtime.NodeId, radio *radiomodel.Model, fw *firmware.Adapter, ag agent.Agent, reports chan<- Report, commandBuf int) *Worker {
	return &Worker{
		NodeId:   nodeId,
		radio:    radio,
		fw:       fw,
		ag:       ag,
		queue:    queue.New(),
		trace:    trace.NewBatch(nodeId),
		Commands: make(chan Command, commandBuf),
		Reports:  reports,
	}
}

// Run drains Commands (and, when configured, External) until Shutdown or
// ctx is cancelled. It is the worker's single blocking select loop: no
// polling.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.Commands:
			if !w.handleCommand(cmd) {
				return
			}
		case data := <-w.External:
			w.handleExternalBytes(data)
		}
	}
}

// handleCommand processes one coordinator command and reports false when
// the worker should exit (Shutdown).
func (w *Worker) handleCommand(cmd Command) bool {
	switch cmd.Kind {
	case CmdAdvanceTime:
		w.Reports <- w.advanceTime(cmd.TargetTime)
		return true
	case CmdReceiveAir:
		w.queue.Push(cmd.ReceiveAir)
		return true
	case CmdShutdown:
		w.Reports <- Report{Kind: ReportShutdownAck, NodeId: w.NodeId, ReachedTime: w.lastTime}
		return false
	default:
		logger.Panicf("worker: node %d received unknown command kind %d", w.NodeId, cmd.Kind)
		return false
	}
}

// handleExternalBytes implements the non-deterministic external path:
// bytes arriving from the TCP bridge are injected and the firmware is
// stepped immediately to absorb them, but any LocalEvents that step
// produces (TxStartRequested, Timer) are only pushed onto the local
// queue — never dispatched here — so they are processed, in proper time
// order, no earlier than the next AdvanceTime tick.
func (w *Worker) handleExternalBytes(data []byte) {
	w.fw.Dispatch(event.NewSerialRxFromAgent(w.lastTime, data))
	out := w.fw.Step(w.lastTime)
	for _, le := range out.Local {
		w.queue.Push(le)
	}
	w.forwardSerialTx(out.SerialTx)
}

func (w *Worker) forwardSerialTx(data []byte) {
	if len(data) == 0 || w.SerialOut == nil {
		return
	}
	select {
	case w.SerialOut <- data:
	default:
		// Drop rather than block the worker goroutine; the bridge is
		// best-effort once no peer is reading.
	}
}

// advanceTime implements AdvanceTime: drain every LocalEvent with time ≤
// target in order, dispatching each to the radio model, firmware
// adapter, or agent; then step the firmware once to target so it can
// register new wakes; then report.
func (w *Worker) advanceTime(target simtime.SimTime) Report {
	if agentEvents, _ := w.stepAgent(target); agentEvents != nil {
		for _, ev := range agentEvents {
			w.queue.Push(ev)
		}
	}

	var transmitAir []event.GlobalEvent
	for {
		ev, ok := w.queue.Peek()
		if !ok || ev.Time > target {
			break
		}
		w.queue.Pop()

		w.trace.Record(ev.Time, ev.Kind, ev.Packet.Payload)

		local, global, err := w.dispatchLocal(ev)
		if err != nil {
			return Report{Kind: ReportFatal, NodeId: w.NodeId, Err: err}
		}
		transmitAir = append(transmitAir, global...)
		for _, le := range local {
			w.queue.Push(le)
		}
	}

	stepOut := w.fw.Step(target)
	for _, le := range stepOut.Local {
		w.queue.Push(le)
	}
	w.forwardSerialTx(stepOut.SerialTx)
	if stepOut.Err != nil {
		return Report{Kind: ReportFatal, NodeId: w.NodeId, Err: stepOut.Err}
	}

	w.lastTime = target
	_, agentWake := w.stepAgent(target)

	return Report{
		Kind:         ReportTimeReached,
		NodeId:       w.NodeId,
		ReachedTime:  target,
		NextWakeTime: w.nextWakeTime(agentWake),
		TransmitAir:  transmitAir,
		TraceRecords: w.trace.Flush(),
	}
}

// stepAgent steps the optional agent collaborator, if configured. It is
// called twice per tick: once before draining (to surface events timed
// at or before `now`) and once after (purely to read back its next
// requested wake for next_wake_time bookkeeping) — the second call must
// be idempotent with respect to already-fired events, which
// agent.Periodic satisfies since its internal cursor only moves forward.
func (w *Worker) stepAgent(now simtime.SimTime) ([]event.LocalEvent, *simtime.SimTime) {
	if w.ag == nil {
		return nil, nil
	}
	return w.ag.Step(now)
}

// nextWakeTime returns the earliest remaining LocalEvent time or
// firmware-requested wake, whichever is smaller (the firmware's own wake
// is already represented as a Timer LocalEvent on the queue by this
// point, pushed by Adapter.Step).
func (w *Worker) nextWakeTime(agentWake *simtime.SimTime) *simtime.SimTime {
	var next *simtime.SimTime
	if ev, ok := w.queue.Peek(); ok {
		t := ev.Time
		next = &t
	}
	if agentWake != nil && (next == nil || *agentWake < *next) {
		next = agentWake
	}
	return next
}

// dispatchLocal routes one LocalEvent to whichever collaborator owns its
// Kind. Kinds owned by the radio model may themselves
// produce further LocalEvents (turnaround chains) and at most one
// TransmitAir GlobalEvent; Kinds owned by the firmware adapter produce
// neither, by construction of firmware.Adapter.Dispatch.
func (w *Worker) dispatchLocal(ev event.LocalEvent) (local []event.LocalEvent, global []event.GlobalEvent, err error) {
	switch ev.Kind {
	case event.KindTxEnd:
		out := w.radio.Dispatch(ev)
		// TxEnd is the instant an outbound transmission's airtime has
		// fully elapsed; the firmware ABI's notify_tx_complete fires at
		// exactly this point, distinct from the later RadioStateChange
		// back to Receiving that rx_turnaround produces.
		w.fw.NotifyTxComplete()
		return out.Local, out.Global, nil
	case event.KindTxStartRequested,
		event.KindTxTurnaroundDone,
		event.KindRxTurnaroundDone,
		event.KindReceiveAir,
		event.KindReceiveEnd:
		out := w.radio.Dispatch(ev)
		return out.Local, out.Global, nil
	case event.KindRadioRxDeliver,
		event.KindRadioStateChange,
		event.KindSerialRxFromAgent:
		w.fw.Dispatch(ev)
		return nil, nil, nil
	case event.KindTimer:
		// Timer events carry no payload to act on; their only purpose
		// is to have been the earliest queued event so far, already
		// reflected in nextWakeTime before this drain loop popped it.
		return nil, nil, nil
	default:
		logger.Panicf("worker: node %d cannot dispatch local event kind %s", w.NodeId, ev.Kind)
		return nil, nil, nil
	}
}
