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

import (
	"sync"

	"github.com/pkg/errors"
)

// registry maps a node_type string to the Factory that
// builds its Entity. The concrete firmware code under test registers
// itself here at init() time; this package ships only the registry
// itself plus the Null entity used for nodes that carry no firmware of
// their own (link-model-only participants, smoke tests).
var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register associates nodeType with f. Re-registering the same nodeType
// replaces the previous factory, matching how ot-ns's otns_main.Main can
// be pointed at a different OtCliPath without recompiling anything else.
func Register(nodeType string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[nodeType] = f
}

// Build looks up nodeType's Factory and invokes it with cfg.
func Build(nodeType string, cfg any) (Entity, error) {
	registryMu.RLock()
	f, ok := registry[nodeType]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("firmware: no factory registered for node_type %q", nodeType)
	}
	return f(cfg)
}

func init() {
	Register("null", func(any) (Entity, error) { return NewNullEntity(), nil })
}
