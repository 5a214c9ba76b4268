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

// Package simconfig loads the YAML model/overlay configuration schema:
// nodes, edges, and run. It is bound through viper the way the
// meshtastic-message-relay example's internal/config package binds its
// own mapstructure-tagged Config, with overlay files merged on top of the
// model file. Environment variables are not read. Full topology/elevation/propagation
// parsing stays out of scope; edges here are exactly the pre-computed
// link parameters linkmodel.Edge consumes.
package simconfig

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// NodeConfig is one entry of the "nodes" list.
type NodeConfig struct {
	Name               string         `mapstructure:"name"`
	NodeType           string         `mapstructure:"node_type"`
	Radio              RadioConfig    `mapstructure:"radio"`
	IdentityKeyHex     string         `mapstructure:"identity_key"`
	InitialTimeMillis  uint64         `mapstructure:"initial_time_millis"`
	InitialRtcSeconds  uint64         `mapstructure:"initial_rtc_seconds"`
	RngSeed            *int64         `mapstructure:"rng_seed"`
	ExternalSerialPort int            `mapstructure:"external_serial_port"`
	AgentBehavior      map[string]any `mapstructure:"agent"`
}

// RadioConfig is the subset of radio.Params that comes from
// configuration rather than firmware defaults.
type RadioConfig struct {
	FrequencyHz     uint64  `mapstructure:"frequency_hz"`
	BandwidthHz     uint32  `mapstructure:"bandwidth_hz"`
	SpreadingFactor int     `mapstructure:"spreading_factor"`
	CodingRate      int     `mapstructure:"coding_rate"`
	TxPowerDbm      float64 `mapstructure:"tx_power_dbm"`
}

// EdgeConfig is one entry of the "edges" list: "{ from, to,
// mean_snr_db at reference_power, optional snr_std_dev }".
type EdgeConfig struct {
	From          string  `mapstructure:"from"`
	To            string  `mapstructure:"to"`
	MeanSnrDb     float64 `mapstructure:"mean_snr_db"`
	SnrStdDevDb   float64 `mapstructure:"snr_std_dev"`
	Bidirectional bool    `mapstructure:"bidirectional"`
}

// RunConfig is the "run" section: { duration, seed }.
type RunConfig struct {
	DurationMicros uint64 `mapstructure:"duration_micros"`
	Seed           int64  `mapstructure:"seed"`
}

// Config is the full core-relevant configuration schema.
type Config struct {
	Nodes []NodeConfig `mapstructure:"nodes"`
	Edges []EdgeConfig `mapstructure:"edges"`
	Run   RunConfig    `mapstructure:"run"`
}

// Load reads and merges the base model file and any overlay files (in
// order, later overlays take precedence), matching the CLI surface's
// `run <model> [<overlay>...]`.
func Load(modelPath string, overlayPaths []string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(modelPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "simconfig: reading model file %s", modelPath)
	}

	for _, overlay := range overlayPaths {
		ov := viper.New()
		ov.SetConfigFile(overlay)
		if err := ov.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "simconfig: reading overlay file %s", overlay)
		}
		if err := v.MergeConfigMap(ov.AllSettings()); err != nil {
			return nil, errors.Wrapf(err, "simconfig: merging overlay file %s", overlay)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "simconfig: unmarshalling configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configuration errors: unknown node references in
// edges, duplicate node names, and malformed links are fatal at build
// time with a message naming the offending entity.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Name == "" {
			return errors.New("simconfig: a node is missing its required name")
		}
		if _, dup := seen[n.Name]; dup {
			return errors.Errorf("simconfig: duplicate node name %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}

	for _, e := range c.Edges {
		if _, ok := seen[e.From]; !ok {
			return errors.Errorf("simconfig: edge references unknown node %q", e.From)
		}
		if _, ok := seen[e.To]; !ok {
			return errors.Errorf("simconfig: edge references unknown node %q", e.To)
		}
		if e.From == e.To {
			return errors.Errorf("simconfig: edge is a self-loop on node %q", e.From)
		}
	}

	if c.Run.DurationMicros == 0 {
		return errors.New("simconfig: run.duration_micros must be non-zero")
	}
	return nil
}
