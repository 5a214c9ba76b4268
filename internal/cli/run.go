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

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshcore-sim/mc-ns/internal/simrun"
	"github.com/meshcore-sim/mc-ns/trace"
)

var (
	durationFlag string
	seedFlag     int64
	seedSetFlag  bool
	traceFlag    string
)

var runCmd = &cobra.Command{
	Use:   "run <model.yaml> [overlay.yaml...]",
	Short: "Run a simulation to completion",
	Long: `run loads a base model file plus any overlay files (later overlays
take precedence), builds the full node/coordinator graph, and drives
virtual time forward until --duration (or the model's run.duration_micros)
is reached.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSimulation,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&durationFlag, "duration", "", "run duration in microseconds, overriding the model's run.duration_micros")
	runCmd.Flags().Int64Var(&seedFlag, "seed", 0, "PRNG root seed, overriding the model's run.seed")
	runCmd.Flags().StringVar(&traceFlag, "trace", "", "write the run's deterministic trace as YAML to this path (\"-\" for stdout)")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	seedSetFlag = cmd.Flags().Changed("seed")

	opts := simrun.Options{Seed: seedFlag, SeedSet: seedSetFlag}
	if durationFlag != "" {
		var micros uint64
		if _, err := fmt.Sscanf(durationFlag, "%d", &micros); err != nil {
			return fmt.Errorf("invalid --duration %q: %w", durationFlag, err)
		}
		opts.DurationMicros = micros
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	result, err := simrun.Run(ctx, args[0], args[1:], opts)
	if err != nil {
		return err
	}

	if traceFlag != "" {
		return writeTrace(traceFlag, result.Trace.Records())
	}
	return nil
}

func writeTrace(path string, records []trace.Record) error {
	if path == "-" {
		return trace.WriteYAML(os.Stdout, records)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("opening --trace output %q: %w", path, err)
	}
	defer f.Close()
	return trace.WriteYAML(f, records)
}
