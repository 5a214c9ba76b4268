// Copyright (c) 2024-2025, The MC-NS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES ARE DISCLAIMED.

// Package simtime defines the core time and identity types shared by every
// simulator component: the monotonic virtual clock and the stable node
// identifier assigned at build time.
package simtime

import "math"

// SimTime is a monotonic count of microseconds elapsed since simulation
// start. It is totally ordered and arithmetic on it is exact (no
// floating point), so time advancement stays deterministic.
type SimTime uint64

// Never is the ceiling Add saturates at. It is far below math.MaxUint64
// so that adding a bounded delay to it never overflows. Next-wake
// bookkeeping does not use it: "no pending wake" is a nil *SimTime.
const Never SimTime = math.MaxUint64 / 2

// NodeId is the stable identifier of a simulated node for the life of a
// run, assigned at build time.
type NodeId int

// InvalidNodeId marks the absence of a node.
const InvalidNodeId NodeId = 0

// BroadcastNodeId is used in trace/visualization contexts to mean "every
// node", never as a routing destination.
const BroadcastNodeId NodeId = -1

// PacketId correlates a transmission's start and end bookkeeping
// (TransmitRecord / ActiveReception) across the coordinator and radio
// models. It is internal and never interpreted by firmware.
type PacketId uint64

// Add returns t+d, saturating at Never rather than overflowing.
func (t SimTime) Add(d SimTime) SimTime {
	if t > Never-d {
		return Never
	}
	return t + d
}

// Before reports whether t is strictly earlier than u.
func (t SimTime) Before(u SimTime) bool {
	return t < u
}

// Min returns the earlier of two SimTime values.
func Min(a, b SimTime) SimTime {
	if a < b {
		return a
	}
	return b
}
