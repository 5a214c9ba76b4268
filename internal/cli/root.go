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

// Package cli implements the `mc-ns` command surface: a single batch
// `run <model> [<overlay>...]` invocation, following the
// meshtastic-message-relay example's cmd/+internal/cli split (persistent
// flags bound to viper in an init()/initLogging() pair). Unlike ot-ns's
// interactive REPL `cli` package, no command language is implemented
// here — this is a one-shot run, not a console.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshcore-sim/mc-ns/logger"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "mc-ns",
	Short: "MC-NS — a discrete-event network simulator for MeshCore",
	Long: `mc-ns drives many MeshCore firmware instances in one process,
advancing virtual time in lockstep across them and modeling the LoRa
radio physical layer (airtime, collisions, SNR/RSSI) so that unmodified
firmware can be exercised under reproducible, accelerated conditions.`,
}

// Execute runs the root command, writing any error to stderr and exiting
// non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initLogging() {
	switch viper.GetString("log-level") {
	case "trace":
		logger.SetLevel(logger.TraceLevel)
	case "debug":
		logger.SetLevel(logger.DebugLevel)
	case "warn":
		logger.SetLevel(logger.WarnLevel)
	case "error":
		logger.SetLevel(logger.ErrorLevel)
	default:
		logger.SetLevel(logger.InfoLevel)
	}
}
