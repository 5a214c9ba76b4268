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

// Package simrun assembles one run of the simulator from a loaded
// simconfig.Config: it resolves node names to simtime.NodeId values,
// builds each node's worker goroutine (radio model, firmware adapter,
// optional agent, optional serial bridge), wires the Link Model and
// Graph Router, and drives a coordinator.Coordinator to completion. It
// exists as its own package, separate from internal/cli, so the wiring
// itself is testable without going through cobra flag parsing.
package simrun

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"

	"github.com/meshcore-sim/mc-ns/agent"
	"github.com/meshcore-sim/mc-ns/coordinator"
	"github.com/meshcore-sim/mc-ns/firmware"
	"github.com/meshcore-sim/mc-ns/linkmodel"
	"github.com/meshcore-sim/mc-ns/logger"
	"github.com/meshcore-sim/mc-ns/prng"
	"github.com/meshcore-sim/mc-ns/progctx"
	"github.com/meshcore-sim/mc-ns/radiomodel"
	"github.com/meshcore-sim/mc-ns/router"
	"github.com/meshcore-sim/mc-ns/serialbridge"
	"github.com/meshcore-sim/mc-ns/simconfig"
	"github.com/meshcore-sim/mc-ns/simtime"
	"github.com/meshcore-sim/mc-ns/trace"
	"github.com/meshcore-sim/mc-ns/worker"
)

// Options overrides config values the way CLI flags layer on top of the
// YAML model/overlay files.
type Options struct {
	DurationMicros uint64 // 0 means "use the config's run.duration_micros"
	Seed           int64  // only applied if SeedSet
	SeedSet        bool
}

// nodeIdentity is everything the wiring pass needs about one configured
// node beyond its simconfig.NodeConfig.
type nodeIdentity struct {
	id  simtime.NodeId
	cfg simconfig.NodeConfig
}

// Result is what one run produced: the merged deterministic trace. It
// does not record serial bridge connection state.
type Result struct {
	Trace *trace.Sink
}

// Run loads modelPath plus any overlays, builds the full node/worker/
// coordinator graph, and drives it to completion. It returns a
// *coordinator.FatalError if any node aborted the run.
func Run(ctx context.Context, modelPath string, overlayPaths []string, opts Options) (*Result, error) {
	cfg, err := simconfig.Load(modelPath, overlayPaths)
	if err != nil {
		return nil, err
	}

	duration := simtime.SimTime(cfg.Run.DurationMicros)
	if opts.DurationMicros > 0 {
		duration = simtime.SimTime(opts.DurationMicros)
	}
	seed := cfg.Run.Seed
	if opts.SeedSet {
		seed = opts.Seed
	}
	root := prng.RootSeed(seed)

	identities, nameToId := assignNodeIds(cfg.Nodes)

	edges, err := resolveEdges(cfg.Edges, nameToId)
	if err != nil {
		return nil, err
	}

	nodeIds := make([]simtime.NodeId, 0, len(identities))
	for _, n := range identities {
		nodeIds = append(nodeIds, n.id)
	}

	linkSeed := prng.New(root, "linkmodel-jitter").Int63()
	links, err := linkmodel.NewTableModel(nodeIds, edges, linkSeed)
	if err != nil {
		return nil, err
	}

	reports := make(chan worker.Report, len(identities))
	workersByNode := make(map[simtime.NodeId]chan<- worker.Command, len(identities))

	// pc owns the lifecycle of every worker and serial-bridge goroutine
	// this run spawns: it tracks each by name so Wait blocks until all of
	// them have actually exited, and Defer runs each bridge's Close once,
	// on whichever comes first of a clean finish or the parent ctx dying.
	pc := progctx.New(ctx)

	for _, n := range identities {
		w, bridge, err := buildWorker(n, root, reports)
		if err != nil {
			return nil, errors.Wrapf(err, "simrun: building node %q", n.cfg.Name)
		}
		workersByNode[n.id] = w.Commands
		if bridge != nil {
			b := bridge
			pc.Defer(func() { _ = b.Close() })
			pc.WaitAdd("bridge:"+n.cfg.Name, 1)
			go func() {
				defer pc.WaitDone("bridge:" + n.cfg.Name)
				b.Run(pc)
			}()
		}
		ww := w
		pc.WaitAdd("worker:"+n.cfg.Name, 1)
		go func() {
			defer pc.WaitDone("worker:" + n.cfg.Name)
			ww.Run(pc)
		}()
	}

	r := router.New(links, nodeIds)
	c := coordinator.New(duration, r, workersByNode, reports)

	runErr := c.Run(pc)
	if runErr != nil {
		pc.Cancel(runErr)
	} else {
		pc.Cancel("run complete")
	}
	pc.Wait()

	if runErr != nil {
		var fatal *coordinator.FatalError
		if stderrors.As(runErr, &fatal) {
			name := "?"
			for _, n := range identities {
				if n.id == fatal.NodeId {
					name = n.cfg.Name
				}
			}
			logger.Errorf("run aborted: node %q: %v", name, fatal.Err)
		}
		return nil, runErr
	}

	return &Result{Trace: c.Trace}, nil
}

// assignNodeIds gives every configured node a stable simtime.NodeId in
// ascending order of its position in the config file, and returns the
// name->id map edges are resolved against.
func assignNodeIds(nodes []simconfig.NodeConfig) ([]nodeIdentity, map[string]simtime.NodeId) {
	identities := make([]nodeIdentity, 0, len(nodes))
	nameToId := make(map[string]simtime.NodeId, len(nodes))
	for i, n := range nodes {
		id := simtime.NodeId(i + 1)
		identities = append(identities, nodeIdentity{id: id, cfg: n})
		nameToId[n.Name] = id
	}
	return identities, nameToId
}

func resolveEdges(edges []simconfig.EdgeConfig, nameToId map[string]simtime.NodeId) ([]linkmodel.Edge, error) {
	out := make([]linkmodel.Edge, 0, len(edges))
	for _, e := range edges {
		from, ok := nameToId[e.From]
		if !ok {
			return nil, errors.Errorf("simrun: edge references unknown node %q", e.From)
		}
		to, ok := nameToId[e.To]
		if !ok {
			return nil, errors.Errorf("simrun: edge references unknown node %q", e.To)
		}
		out = append(out, linkmodel.Edge{
			From:          from,
			To:            to,
			MeanSnrDb:     e.MeanSnrDb,
			SnrStdDevDb:   e.SnrStdDevDb,
			Bidirectional: e.Bidirectional,
		})
	}
	return out, nil
}

// buildWorker constructs one node's radio model, firmware entity, optional
// agent, optional serial bridge, and worker goroutine handle. It never
// starts the worker goroutine itself; the caller does, after every
// worker's Commands channel has been collected (so the router/coordinator
// can be built from a complete node set first).
func buildWorker(n nodeIdentity, root prng.RootSeed, reports chan worker.Report) (*worker.Worker, *serialbridge.Bridge, error) {
	nodeType := n.cfg.NodeType
	if nodeType == "" {
		nodeType = "null"
	}

	rngSeed := prng.NodeSeed(root, n.cfg.Name)
	if n.cfg.RngSeed != nil {
		rngSeed = *n.cfg.RngSeed
	}

	entity, err := firmware.Build(nodeType, firmwareConfig{node: n.cfg, rngSeed: rngSeed})
	if err != nil {
		return nil, nil, err
	}

	radioModel := radiomodel.New(n.id)
	fw := firmware.New(n.id, entity, n.cfg.InitialRtcSeconds)

	var ag agent.Agent
	if n.cfg.AgentBehavior != nil {
		ag, err = buildAgent(n.cfg.AgentBehavior)
		if err != nil {
			return nil, nil, err
		}
	}

	w := worker.New(n.id, radioModel, fw, ag, reports, 1)

	var bridge *serialbridge.Bridge
	if n.cfg.ExternalSerialPort != 0 {
		external := make(chan []byte, 8)
		serialOut := make(chan []byte, 8)
		w.External = external
		w.SerialOut = serialOut

		addr := fmtAddr(n.cfg.ExternalSerialPort)
		bridge, err = serialbridge.Listen(n.id, addr, external, serialOut)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "node %q: opening serial bridge", n.cfg.Name)
		}
	}

	return w, bridge, nil
}

// firmwareConfig is the cfg any passed to a registered firmware.Factory:
// the node's full configuration plus its resolved deterministic RNG
// seed, so firmware implementations needing their own randomness derive
// it from the run's root seed rather than seeding themselves
// independently.
type firmwareConfig struct {
	node    simconfig.NodeConfig
	rngSeed int64
}

func buildAgent(behavior map[string]any) (agent.Agent, error) {
	intervalMicros, _ := behavior["interval_micros"].(int)
	offsetMicros, _ := behavior["offset_micros"].(int)
	payload, _ := behavior["payload"].(string)
	if intervalMicros <= 0 {
		return nil, errors.New("simrun: agent.interval_micros must be positive")
	}
	return agent.NewPeriodic(
		simtime.SimTime(offsetMicros),
		simtime.SimTime(intervalMicros),
		[]byte(payload),
	), nil
}

func fmtAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
