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

import "github.com/meshcore-sim/mc-ns/radio"

// NullEntity is an Entity that never transmits and never requests a
// wake. It registers under node_type "null" and is meant for nodes whose
// only purpose in a scenario is to receive — a pure-receiver slot, or a
// placeholder until real firmware is wired in through Register.
type NullEntity struct {
	fs *MemFS
}

// NewNullEntity returns a ready NullEntity with an empty Filesystem.
func NewNullEntity() *NullEntity {
	return &NullEntity{fs: NewMemFS()}
}

func (e *NullEntity) Close() error { return nil }

func (e *NullEntity) Step(uint64, uint64) YieldResult {
	return YieldResult{Reason: YieldIdle}
}

func (e *NullEntity) InjectRadioRx(radio.Packet, radio.DbValue, radio.DbValue) {}

func (e *NullEntity) InjectSerialRx([]byte) {}

func (e *NullEntity) NotifyTxComplete() {}

func (e *NullEntity) NotifyStateChange(uint64) {}

func (e *NullEntity) GetPublicKey() [32]byte { return [32]byte{} }

func (e *NullEntity) Reboot(any) error { return nil }

func (e *NullEntity) Filesystem() Filesystem { return e.fs }
