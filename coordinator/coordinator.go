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

// Package coordinator implements the Coordinator: global time, the set
// of worker handles, each worker's last-reported next_wake_time, and the
// global event queue used for TransmitRecord teardown bookkeeping and
// the end-of-run marker.
package coordinator

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/meshcore-sim/mc-ns/event"
	"github.com/meshcore-sim/mc-ns/logger"
	"github.com/meshcore-sim/mc-ns/router"
	"github.com/meshcore-sim/mc-ns/simtime"
	"github.com/meshcore-sim/mc-ns/trace"
	"github.com/meshcore-sim/mc-ns/worker"
)

// transmitRecord is the coordinator's own bookkeeping of an outstanding
// transmission, used only to schedule the TransmitEnd global event that
// tears it down; the per-node live/dead TX state itself is owned by each
// radio model, not duplicated here.
type transmitRecord struct {
	source   simtime.NodeId
	packetId simtime.PacketId
	endTime  simtime.SimTime
}

// handle is everything the coordinator knows about one worker.
type handle struct {
	nodeId       simtime.NodeId
	commands     chan<- worker.Command
	nextWakeTime *simtime.SimTime
}

// FatalError reports which node caused a run to abort, and why.
type FatalError struct {
	NodeId simtime.NodeId
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("node %d: %s", e.NodeId, e.Err.Error())
}

func (e *FatalError) Unwrap() error { return e.Err }

func determinismViolation(reached, commanded simtime.SimTime) error {
	return errors.Errorf("determinism violation: worker reported reached_time=%d, commanded target=%d", reached, commanded)
}

// Coordinator drives every worker in lockstep to run_duration.
type Coordinator struct {
	runDuration simtime.SimTime
	router      *router.Router

	handles []*handle
	reports chan worker.Report

	currentTime simtime.SimTime
	globalQueue []event.GlobalEvent // kept sorted by (Time, Source, Kind) on insert
	transmits   map[simtime.PacketId]*transmitRecord

	// Trace accumulates every worker's per-tick trace batch into one
	// globally time-ordered sequence.
	Trace *trace.Sink
}

// New returns a Coordinator that will drive every worker whose Commands
// channel is given in workers, routing TransmitAir through r, until
// runDuration.
func New(runDuration simtime.SimTime, r *router.Router, workers map[simtime.NodeId]chan<- worker.Command, reports chan worker.Report) *Coordinator {
	c := &Coordinator{
		runDuration: runDuration,
		router:      r,
		reports:     reports,
		transmits:   make(map[simtime.PacketId]*transmitRecord),
		Trace:       trace.NewSink(),
	}
	for id, cmds := range workers {
		// Every worker starts with an implicit wake at t=0: nothing has
		// reported a next_wake_time yet, but firmware must be stepped at
		// least once at simulation start to begin producing events.
		zero := simtime.SimTime(0)
		c.handles = append(c.handles, &handle{nodeId: id, commands: cmds, nextWakeTime: &zero})
	}
	return c
}

// Run drives the main tick loop to completion or until a worker reports
// a fatal error, then shuts every worker down. It returns a *FatalError
// if any worker aborted, nil on a clean run to runDuration.
func (c *Coordinator) Run(ctx context.Context) error {
	err := c.runTicks(ctx)
	c.shutdownAll(ctx)
	return err
}

func (c *Coordinator) runTicks(ctx context.Context) error {
	for c.currentTime < c.runDuration {
		advanceTo := c.computeAdvanceTo()

		c.drainGlobalEvents(advanceTo)

		if err := c.tick(ctx, advanceTo); err != nil {
			return err
		}

		c.currentTime = advanceTo
	}
	return nil
}

// computeAdvanceTo implements step 1: the minimum of every worker's
// next_wake_time, the earliest pending global event's time, and
// run_duration.
func (c *Coordinator) computeAdvanceTo() simtime.SimTime {
	advanceTo := c.runDuration
	for _, h := range c.handles {
		if h.nextWakeTime != nil && *h.nextWakeTime < advanceTo {
			advanceTo = *h.nextWakeTime
		}
	}
	if len(c.globalQueue) > 0 && c.globalQueue[0].Time < advanceTo {
		advanceTo = c.globalQueue[0].Time
	}
	return advanceTo
}

// drainGlobalEvents implements step 2: process every global event with
// time ≤ advanceTo. Only TransmitEnd bookkeeping and SimulationEnd
// markers live here; TransmitAir is never queued globally since the
// Graph Router handles it synchronously as reports arrive (step 4).
func (c *Coordinator) drainGlobalEvents(advanceTo simtime.SimTime) {
	i := 0
	for ; i < len(c.globalQueue); i++ {
		ev := c.globalQueue[i]
		if ev.Time > advanceTo {
			break
		}
		if ev.Kind == event.KindTransmitEnd {
			delete(c.transmits, ev.PacketId)
		}
	}
	c.globalQueue = c.globalQueue[i:]
}

// tick implements steps 3-4: send AdvanceTime to every worker in
// parallel, collect one TimeReached per worker, and route any
// TransmitAir announcements through the Graph Router as they arrive.
func (c *Coordinator) tick(ctx context.Context, advanceTo simtime.SimTime) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range c.handles {
		h := h
		g.Go(func() error {
			select {
			case h.commands <- worker.Command{Kind: worker.CmdAdvanceTime, TargetTime: advanceTo}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	remaining := len(c.handles)
	for remaining > 0 {
		select {
		case rep := <-c.reports:
			remaining--
			if err := c.handleReport(rep, advanceTo); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Coordinator) handleReport(rep worker.Report, advanceTo simtime.SimTime) error {
	if rep.Kind == worker.ReportFatal {
		logger.Errorf("node %d: fatal error: %v", rep.NodeId, rep.Err)
		return &FatalError{NodeId: rep.NodeId, Err: rep.Err}
	}
	if rep.ReachedTime != advanceTo {
		return &FatalError{NodeId: rep.NodeId, Err: determinismViolation(rep.ReachedTime, advanceTo)}
	}

	if len(rep.TraceRecords) > 0 {
		c.Trace.Append(rep.TraceRecords)
	}

	h := c.handleFor(rep.NodeId)
	h.nextWakeTime = rep.NextWakeTime

	for _, tx := range rep.TransmitAir {
		c.transmits[tx.PacketId] = &transmitRecord{source: tx.Source, packetId: tx.PacketId, endTime: tx.EndTime}
		c.insertGlobalEvent(event.NewTransmitEnd(tx.EndTime, tx.Source, tx.PacketId))

		for _, d := range c.router.Route(tx) {
			dst := c.handleFor(d.Destination)
			if dst == nil {
				continue
			}
			dst.commands <- worker.Command{Kind: worker.CmdReceiveAir, ReceiveAir: d.ReceiveAir}
			if dst.nextWakeTime == nil || d.ReceiveAir.Time < *dst.nextWakeTime {
				t := d.ReceiveAir.Time
				dst.nextWakeTime = &t
			}
		}
	}
	return nil
}

func (c *Coordinator) handleFor(id simtime.NodeId) *handle {
	for _, h := range c.handles {
		if h.nodeId == id {
			return h
		}
	}
	return nil
}

// insertGlobalEvent keeps c.globalQueue sorted by GlobalEvent.Less on
// insert, since it is only ever consumed from the front.
func (c *Coordinator) insertGlobalEvent(ev event.GlobalEvent) {
	i := 0
	for ; i < len(c.globalQueue); i++ {
		if ev.Less(c.globalQueue[i]) {
			break
		}
	}
	c.globalQueue = append(c.globalQueue, event.GlobalEvent{})
	copy(c.globalQueue[i+1:], c.globalQueue[i:])
	c.globalQueue[i] = ev
}

func (c *Coordinator) shutdownAll(ctx context.Context) {
	for _, h := range c.handles {
		select {
		case h.commands <- worker.Command{Kind: worker.CmdShutdown}:
		case <-ctx.Done():
			return
		}
	}
	remaining := len(c.handles)
	for remaining > 0 {
		select {
		case rep := <-c.reports:
			if rep.Kind == worker.ReportShutdownAck {
				remaining--
			}
		case <-ctx.Done():
			return
		}
	}
}
