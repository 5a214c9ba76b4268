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

// Package queue implements the per-node local event queue: a time-
// ordered min-heap of event.LocalEvent, tie-broken by monotonic
// insertion sequence. It is grounded on ot-ns's
// dispatcher/alarm_mgr.go, which keeps a container/heap min-heap of
// per-node next-alarm times; here the heap holds the events themselves
// rather than just wake times, since a node worker needs to drain
// several heterogeneous event kinds per tick, not just alarms.
package queue

import (
	"container/heap"

	"github.com/meshcore-sim/mc-ns/event"
)

// Heap is a time-ordered min-heap of event.LocalEvent. It is not safe
// for concurrent use; each node worker owns exactly one Heap
// exclusively — no shared mutable state crosses a worker boundary.
type Heap struct {
	items   innerHeap
	nextSeq uint64
}

// New returns an empty Heap ready for use.
func New() *Heap {
	h := &Heap{}
	heap.Init(&h.items)
	return h
}

// Push inserts ev, assigning it the next monotonic sequence number so
// that events with equal Time still tie-break deterministically in
// insertion order.
func (h *Heap) Push(ev event.LocalEvent) {
	ev.Seq = h.nextSeq
	h.nextSeq++
	heap.Push(&h.items, ev)
}

// Peek returns the earliest event without removing it, and false if the
// heap is empty.
func (h *Heap) Peek() (event.LocalEvent, bool) {
	if len(h.items) == 0 {
		return event.LocalEvent{}, false
	}
	return h.items[0], true
}

// Pop removes and returns the earliest event, and false if the heap is
// empty.
func (h *Heap) Pop() (event.LocalEvent, bool) {
	if len(h.items) == 0 {
		return event.LocalEvent{}, false
	}
	return heap.Pop(&h.items).(event.LocalEvent), true
}

// Len returns the number of pending events.
func (h *Heap) Len() int {
	return len(h.items)
}

// innerHeap implements container/heap.Interface. Ordering is (Time, Seq)
// so ties between events pushed in the same tick resolve by insertion
// order.
type innerHeap []event.LocalEvent

func (h innerHeap) Len() int { return len(h) }

func (h innerHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}

func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *innerHeap) Push(x any) {
	*h = append(*h, x.(event.LocalEvent))
}

func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
