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

// Package radio holds the physical-layer parameters and the deterministic
// LoRa airtime/sensitivity formulas that both the radio model and the link
// model depend on. It mirrors the role ot-ns's radiomodel/model_params.go
// plays for 802.15.4: a pure, side-effect-free parameter and formula layer
// consumed by the stateful per-node radio model.
package radio

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// DbValue is a signal-level quantity in decibels (SNR) or dBm (RSSI, TX
// power), matching ot-ns's DbmValue/DbValue convention.
type DbValue = float64

// Default turnaround times (µs) between RX and TX states.
const (
	DefaultRxToTxTurnaround SimMicros = 100
	DefaultTxToRxTurnaround SimMicros = 100
)

// SimMicros is a plain microsecond duration, distinct from simtime.SimTime
// (an absolute instant) to keep durations and instants from being confused
// at call sites.
type SimMicros = uint64

// Params holds the fixed radio configuration of one node's radio for the
// life of a run. Spreading factor 7-12, coding rate 5-8 (mapped here to
// 4/5..4/8), bandwidth and frequency in Hz.
type Params struct {
	FrequencyHz     uint64
	BandwidthHz     uint32
	SpreadingFactor int // 7..12
	CodingRate      int // 5..8, denominator of 4/CodingRate
	TxPowerDbm      DbValue
	RxToTxTurnaround SimMicros
	TxToRxTurnaround SimMicros

	// Preamble length in symbols, LoRa default is 8.
	PreambleSymbols int
	// ExplicitHeader selects explicit (true) vs implicit (false) header
	// mode; explicit is the MeshCore default.
	ExplicitHeader bool
	// LowDataRateOptimize forces the low-data-rate-optimize bit on
	// regardless of the computed symbol duration threshold.
	LowDataRateOptimize bool
	// CrcEnabled selects whether a CRC is appended to the payload.
	CrcEnabled bool
}

// DefaultParams returns a Params value with MeshCore's common defaults:
// 915 MHz, 125 kHz BW, SF11, CR 4/5, explicit header, CRC on.
func DefaultParams() Params {
	return Params{
		FrequencyHz:      915_000_000,
		BandwidthHz:      125_000,
		SpreadingFactor:  11,
		CodingRate:       5,
		TxPowerDbm:       17,
		RxToTxTurnaround: DefaultRxToTxTurnaround,
		TxToRxTurnaround: DefaultTxToRxTurnaround,
		PreambleSymbols:  8,
		ExplicitHeader:   true,
		CrcEnabled:       true,
	}
}

// Validate rejects configuration errors: unsupported SF/BW are fatal, a
// build-time configuration error, not a runtime drop.
func (p Params) Validate() error {
	if p.SpreadingFactor < 7 || p.SpreadingFactor > 12 {
		return errors.Errorf("radio params: unsupported spreading factor SF%d (must be 7..12)", p.SpreadingFactor)
	}
	if p.CodingRate < 5 || p.CodingRate > 8 {
		return errors.Errorf("radio params: unsupported coding rate 4/%d (must be 4/5..4/8)", p.CodingRate)
	}
	if p.BandwidthHz == 0 {
		return errors.New("radio params: bandwidth must be non-zero")
	}
	if p.FrequencyHz == 0 {
		return errors.New("radio params: frequency must be non-zero")
	}
	return nil
}

// sensitivityTableDb is the SNR sensitivity threshold (dB) indexed by
// spreading factor.
var sensitivityTableDb = map[int]DbValue{
	7:  -7.5,
	8:  -10.0,
	9:  -12.5,
	10: -15.0,
	11: -17.5,
	12: -20.0,
}

// SensitivityThresholdDb returns the minimum SNR (dB) at which a frame
// modulated with the given spreading factor can be demodulated. Panics if
// sf is out of the supported 7..12 range, since that indicates a
// configuration error that should have been rejected by Validate already.
func SensitivityThresholdDb(sf int) DbValue {
	v, ok := sensitivityTableDb[sf]
	if !ok {
		panic(fmt.Sprintf("radio: spreading factor SF%d has no sensitivity entry", sf))
	}
	return v
}

// symbolDurationUs returns the duration of one LoRa symbol, in
// microseconds: 2^SF / BW seconds.
func symbolDurationUs(p Params) float64 {
	return math.Pow(2, float64(p.SpreadingFactor)) / float64(p.BandwidthHz) * 1e6
}

// Airtime computes the deterministic LoRa time-on-air (µs) for a payload
// of payloadLen bytes under params p, following the standard SX127x/SX126x
// time-on-air formula (Semtech AN1200.13): preamble symbols, explicit
// header with CRC, payload symbol count depending on low-data-rate
// optimization. The result is rounded to whole microseconds since SimTime
// arithmetic must stay exact.
func Airtime(payloadLen int, p Params) SimMicros {
	tSym := symbolDurationUs(p)
	tPreamble := (float64(p.PreambleSymbols) + 4.25) * tSym

	de := 0.0
	if p.LowDataRateOptimize || tSym > 16_000 {
		de = 1.0
	}
	ih := 0.0
	if !p.ExplicitHeader {
		ih = 1.0
	}
	crc := 0.0
	if p.CrcEnabled {
		crc = 1.0
	}

	sf := float64(p.SpreadingFactor)
	cr := float64(p.CodingRate)

	numerator := 8*float64(payloadLen) - 4*sf + 28 + 16*crc - 20*ih
	denominator := 4 * (sf - 2*de)
	payloadSymbNb := 8.0
	if ratio := math.Ceil(numerator/denominator) * cr; ratio > 0 {
		payloadSymbNb += ratio
	}

	tPayload := payloadSymbNb * tSym
	total := tPreamble + tPayload
	return SimMicros(math.Round(total))
}

// Packet is an opaque over-the-air payload plus the internal identifier
// used only to correlate transmission start and end bookkeeping. The
// radio model overwrites Id with its own per-transmitter counter when a
// transmission starts; the packet handed to firmware on reception carries
// that Id along with the bytes.
type Packet struct {
	Id      uint64
	Payload []byte
}

// Len returns the payload length used for airtime computation.
func (p Packet) Len() int {
	return len(p.Payload)
}
