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

// Package trace records the deterministic (time, source, event_kind,
// payload_hash) tuple stream a run's reproducibility is checked against.
// Each worker batches its own records and flushes them once per
// TimeReached: records are accessed only through per-worker batches
// flushed inside TimeReached, never touched with a cross-worker lock.
// Batches are merged and sorted by the coordinator only, as each report
// arrives, never by a worker, so no lock is ever taken on the hot path.
package trace

import (
	"hash/fnv"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/meshcore-sim/mc-ns/event"
	"github.com/meshcore-sim/mc-ns/simtime"
)

// Record is one traced occurrence: a time, the node it happened at, the
// kind of event, and an FNV hash of its payload bytes (never the raw
// bytes themselves, keeping traces small and independent of firmware
// payload contents).
type Record struct {
	Time        simtime.SimTime
	Source      simtime.NodeId
	Kind        event.Kind
	PayloadHash uint64
}

// Less orders two Records by (Time, Source, Kind), the same total order
// used to break GlobalEvent ties, since a trace is exactly the
// externally observable projection of that ordering.
func (r Record) Less(other Record) bool {
	if r.Time != other.Time {
		return r.Time < other.Time
	}
	if r.Source != other.Source {
		return r.Source < other.Source
	}
	return r.Kind < other.Kind
}

// HashPayload returns the FNV-1a hash of data, used to build a Record
// without retaining the payload itself.
func HashPayload(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}

// Batch accumulates Records for one worker between TimeReached flushes.
// Not safe for concurrent use; each worker owns exactly one Batch.
type Batch struct {
	nodeId  simtime.NodeId
	records []Record
}

// NewBatch returns an empty Batch for nodeId.
func NewBatch(nodeId simtime.NodeId) *Batch {
	return &Batch{nodeId: nodeId}
}

// Record appends one traced occurrence at the given time and kind, with
// payload hashed via HashPayload.
func (b *Batch) Record(t simtime.SimTime, kind event.Kind, payload []byte) {
	b.records = append(b.records, Record{Time: t, Source: b.nodeId, Kind: kind, PayloadHash: HashPayload(payload)})
}

// Flush returns and clears the accumulated records, to be called once
// per TimeReached.
func (b *Batch) Flush() []Record {
	out := b.records
	b.records = nil
	return out
}

// Sink merges per-worker batches into one globally time-ordered trace,
// written by the coordinator only, never on a worker's hot path.
type Sink struct {
	records []Record
}

// NewSink returns an empty Sink.
func NewSink() *Sink { return &Sink{} }

// Append merges one worker's flushed batch into the sink and keeps the
// whole trace sorted by Record.Less.
func (s *Sink) Append(records []Record) {
	s.records = append(s.records, records...)
	sort.Slice(s.records, func(i, j int) bool { return s.records[i].Less(s.records[j]) })
}

// Records returns the full, time-ordered trace accumulated so far.
func (s *Sink) Records() []Record {
	return s.records
}

// yamlRecord is Record's on-the-wire shape for WriteYAML: event.Kind
// renders as its name rather than its raw uint8, since the trace file is
// meant to be read by a person diffing two runs, not just compared
// byte-for-byte (that comparison is done on Records() directly).
type yamlRecord struct {
	Time        simtime.SimTime `yaml:"time"`
	Source      simtime.NodeId  `yaml:"source"`
	Kind        string          `yaml:"kind"`
	PayloadHash uint64          `yaml:"payload_hash"`
}

// WriteYAML renders a trace as YAML, one document containing the full
// ordered record list, for the `--trace` CLI flag to hand a
// run's trace to a human or a diffing tool without re-deriving it from
// the binary Records() order.
func WriteYAML(w io.Writer, records []Record) error {
	out := make([]yamlRecord, len(records))
	for i, r := range records {
		out[i] = yamlRecord{Time: r.Time, Source: r.Source, Kind: r.Kind.String(), PayloadHash: r.PayloadHash}
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(out)
}
