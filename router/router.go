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

// Package router implements the Graph Router: a pure
// per-event function living inside the coordinator that turns one
// TransmitAir GlobalEvent into a ReceiveAir LocalEvent for every
// reachable destination, using the Link Model to decide reachability and
// SNR/RSSI. It never touches a worker directly; it returns the
// (destination, event) pairs for the coordinator to enqueue.
package router

import (
	"sort"

	"github.com/meshcore-sim/mc-ns/event"
	"github.com/meshcore-sim/mc-ns/linkmodel"
	"github.com/meshcore-sim/mc-ns/simtime"
)

// Delivery is one ReceiveAir destined for one node, produced by routing a
// single TransmitAir.
type Delivery struct {
	Destination simtime.NodeId
	ReceiveAir  event.LocalEvent
}

// Router holds the immutable, run-wide Link Model and the full set of
// node ids in the topology (every node is a candidate destination except
// the transmitter itself).
type Router struct {
	links linkmodel.Model
	nodes []simtime.NodeId
}

// New returns a Router over links, routing to every id in nodes.
func New(links linkmodel.Model, nodes []simtime.NodeId) *Router {
	sorted := make([]simtime.NodeId, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &Router{links: links, nodes: sorted}
}

// Route converts one TransmitAir GlobalEvent into a ReceiveAir delivery
// for every node the Link Model reports reachable from tx.Source, in
// ascending NodeId order.
func (r *Router) Route(tx event.GlobalEvent) []Delivery {
	var deliveries []Delivery
	for _, dst := range r.nodes {
		if dst == tx.Source {
			continue
		}
		link, ok := r.links.Query(tx.Source, dst, tx.Params)
		if !ok {
			continue
		}
		deliveries = append(deliveries, Delivery{
			Destination: dst,
			ReceiveAir: event.NewReceiveAir(
				tx.Time, tx.Source, tx.Packet, tx.Params, tx.EndTime, link.SnrDb, link.RssiDbm, tx.PacketId,
			),
		})
	}
	return deliveries
}
