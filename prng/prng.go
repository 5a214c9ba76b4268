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

// Package prng derives independent, reproducible *rand.Rand streams from a
// single run-level seed. A run is fully determined by its root seed: every
// per-node and per-link jitter stream is a deterministic function of that
// root plus a stable discriminator (node name, or the ordered pair of node
// names forming a link), so two runs started with the same root seed and
// topology draw bit-identical sequences from each stream regardless of the
// order callers happen to request them in.
package prng

import (
	"hash/fnv"
	"math/rand"
)

// RootSeed is the single seed a run is started with.
type RootSeed int64

// streamSeed derives a child seed for a named stream off the root. Using an
// FNV hash of the discriminator rather than e.g. string length or position
// means the derivation is stable under reordering of nodes/edges in config.
func streamSeed(root RootSeed, discriminator string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(discriminator))
	// Mix in the root seed after hashing so a zero-length discriminator
	// still depends on root, and distinct roots never collide trivially.
	return int64(h.Sum64()) ^ int64(root)
}

// NodeSeed derives the deterministic PRNG seed for a node's own jitter
// stream (firmware timing noise, etc.) from the run's root seed and the
// node's name. If the node config supplies an explicit rng_seed, callers
// should prefer that value over NodeSeed and only fall back to it when
// the config leaves rng_seed unset.
func NodeSeed(root RootSeed, nodeName string) int64 {
	return streamSeed(root, "node:"+nodeName)
}

// LinkSeed derives a deterministic PRNG seed for one link's SNR/RSSI jitter
// stream from the run's root seed and the ordered pair of node names
// forming the edge. Directional edges (from, to) and their reverse are
// given different seeds. linkmodel.TableModel does not use it: it draws
// every edge's jitter, in edge-list order, from the single stream seeded
// from New(root, "linkmodel-jitter").
func LinkSeed(root RootSeed, from, to string) int64 {
	return streamSeed(root, "link:"+from+"->"+to)
}

// New returns a fresh, independent *rand.Rand seeded deterministically from
// root and discriminator. Every call with the same arguments returns a
// generator that will produce the same sequence of draws.
func New(root RootSeed, discriminator string) *rand.Rand {
	return rand.New(rand.NewSource(streamSeed(root, discriminator)))
}
