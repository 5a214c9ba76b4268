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

// Package linkmodel implements the stateless Link Model: a pure query
// from (source, destination, radio params) to either "unreachable" or an
// SNR/RSSI pair. Real topology/elevation/propagation computation is an
// external collaborator; this package defines the narrow Model
// interface that collaborator implements, plus a concrete table-based
// Model built from the configured edge list, in the spirit of ot-ns's
// RadioModel interface (radiomodel/radiomodel.go) that separates the
// stable query contract from a swappable concrete implementation.
package linkmodel

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/meshcore-sim/mc-ns/radio"
	"github.com/meshcore-sim/mc-ns/simtime"
)

// Link is the directional result of a reachability query: the SNR and
// RSSI a receiver at dst would observe for a transmission from src.
type Link struct {
	SnrDb   radio.DbValue
	RssiDbm radio.DbValue
}

// Model is the stateless Link Model query interface. It must be safe for
// concurrent use by every node worker's goroutine: immutable during a
// run and shared by reference, with no per-query locking.
type Model interface {
	// Query returns the Link from src to dst, or ok=false if dst is out
	// of range of src (no reception event should be generated). It must
	// be pure: repeated calls with identical arguments return identical
	// results.
	Query(src, dst simtime.NodeId, params radio.Params) (Link, bool)
}

// Edge is one configured directional (or, if Bidirectional, undirected)
// link between two nodes: { from, to, mean_snr_db at reference_power,
// optional snr_std_dev }.
type Edge struct {
	From          simtime.NodeId
	To            simtime.NodeId
	MeanSnrDb     radio.DbValue
	SnrStdDevDb   radio.DbValue // 0 means no jitter
	Bidirectional bool
}

// NoiseFloorDbm is the ambient noise floor used to translate an SNR value
// back into an RSSI value for trace/diagnostic purposes: rssi = snr +
// noiseFloor. MeshCore radios report RSSI directly from hardware, but the
// link model only configures SNR (as the config schema names), so RSSI is
// derived from it.
const NoiseFloorDbm = -120.0

// TableModel is a concrete, deterministic Model built once from a fixed
// edge list, with any configured jitter sampled once at build time so
// that Query stays pure afterward. This mirrors how ot-ns bakes per-
// node/per-model randomness into fixed seeded streams at construction
// time (prng.NewRadioModelRandomSeed) rather than resampling on every
// call.
type TableModel struct {
	links map[linkKey]Link
	nodes map[simtime.NodeId]struct{}
}

type linkKey struct {
	src, dst simtime.NodeId
}

// NewTableModel builds a TableModel from edges, deriving any configured
// Gaussian SNR jitter from rngSeed so that two builds with the same seed
// and edges produce byte-identical links.
func NewTableModel(nodeIds []simtime.NodeId, edges []Edge, rngSeed int64) (*TableModel, error) {
	rng := rand.New(rand.NewSource(rngSeed))
	m := &TableModel{
		links: make(map[linkKey]Link, len(edges)*2),
		nodes: make(map[simtime.NodeId]struct{}, len(nodeIds)),
	}
	for _, id := range nodeIds {
		m.nodes[id] = struct{}{}
	}

	addLink := func(from, to simtime.NodeId, meanSnr, stdDev radio.DbValue) error {
		if _, ok := m.nodes[from]; !ok {
			return errors.Errorf("link model: edge references unknown node %d", from)
		}
		if _, ok := m.nodes[to]; !ok {
			return errors.Errorf("link model: edge references unknown node %d", to)
		}
		if from == to {
			return errors.Errorf("link model: edge %d->%d is a self-loop", from, to)
		}
		snr := meanSnr
		if stdDev > 0 {
			snr += rng.NormFloat64() * stdDev
		}
		m.links[linkKey{from, to}] = Link{
			SnrDb:   snr,
			RssiDbm: snr + NoiseFloorDbm,
		}
		return nil
	}

	for _, e := range edges {
		if err := addLink(e.From, e.To, e.MeanSnrDb, e.SnrStdDevDb); err != nil {
			return nil, err
		}
		if e.Bidirectional {
			if err := addLink(e.To, e.From, e.MeanSnrDb, e.SnrStdDevDb); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Query implements Model.
func (m *TableModel) Query(src, dst simtime.NodeId, _ radio.Params) (Link, bool) {
	if _, ok := m.nodes[src]; !ok {
		panic(fmt.Sprintf("link model: unknown source node %d", src))
	}
	if _, ok := m.nodes[dst]; !ok {
		panic(fmt.Sprintf("link model: unknown destination node %d", dst))
	}
	l, ok := m.links[linkKey{src, dst}]
	return l, ok
}

// Neighbors returns every destination node reachable from src, in a
// stable (sorted) order so callers that must tie-break deterministically
// get reproducible iteration.
func (m *TableModel) Neighbors(src simtime.NodeId) []simtime.NodeId {
	var out []simtime.NodeId
	for k := range m.links {
		if k.src == src {
			out = append(out, k.dst)
		}
	}
	sortNodeIds(out)
	return out
}

func sortNodeIds(ids []simtime.NodeId) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
