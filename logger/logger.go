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

// Package logger wraps zap with the small set of level constants and
// testify-backed Assert*/Panic*/Fatal* helpers the rest of the simulator
// calls, the same shape ot-ns's logger package gives its dispatcher and
// node code. Assert* here uses testify/assert as an in-process invariant
// checker, not as a test framework — exactly ot-ns's pattern of routing
// assertion failures through the same structured logger rather than a
// bare panic().
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the simulator-wide log level. Values deliberately leave room
// above InfoLevel for finer trace/debug granularity, mirroring ot-ns's
// logger.Level range.
type Level int8

const (
	TraceLevel   Level = 5
	DebugLevel   Level = 4
	InfoLevel    Level = 3
	WarnLevel    Level = 2
	ErrorLevel   Level = 1
	PanicLevel   Level = 0
	FatalLevel   Level = -1
	OffLevel     Level = -2
	MinLevel           = OffLevel
	DefaultLevel       = InfoLevel
)

var (
	cfg          zap.Config
	zaplogger    *zap.Logger
	currentLevel Level
	zapLevels    = []zapcore.Level{
		zapcore.FatalLevel + 1, // below Off: never logged
		zapcore.FatalLevel,
		zapcore.PanicLevel,
		zapcore.ErrorLevel,
		zapcore.WarnLevel,
		zapcore.InfoLevel,
		zapcore.DebugLevel,
		zapcore.DebugLevel,
	}
)

func init() {
	cfgJSON := []byte(`{
		"level": "debug",
		"outputPaths": ["stderr"],
		"errorOutputPaths": ["stderr"],
		"encoding": "console",
		"encoderConfig": {
			"messageKey": "message",
			"levelKey": "level",
			"levelEncoder": "lowercase"
		}
	}`)
	currentLevel = DefaultLevel
	if err := json.Unmarshal(cfgJSON, &cfg); err != nil {
		panic(err)
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	rebuildLoggerFromCfg()
}

// SetLevel sets the simulator-wide log level.
func SetLevel(lv Level) {
	currentLevel = lv
}

// GetLevel returns the current log level.
func GetLevel() Level {
	return currentLevel
}

// SetOutput redirects logger output, e.g. logger.SetOutput([]string{"stderr", "run.log"}).
func SetOutput(outputs []string) {
	cfg.OutputPaths = outputs
	rebuildLoggerFromCfg()
}

func rebuildLoggerFromCfg() {
	newLogger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	if zaplogger != nil {
		_ = zaplogger.Sync()
	}
	zaplogger = newLogger
}

func getMessage(template string, fmtArgs []interface{}) string {
	if len(fmtArgs) == 0 {
		return template
	}
	if template != "" {
		return fmt.Sprintf(template, fmtArgs...)
	}
	if len(fmtArgs) == 1 {
		if str, ok := fmtArgs[0].(string); ok {
			return str
		}
	}
	return fmt.Sprint(fmtArgs...)
}

// Logf outputs a formatted message at the given level.
func Logf(level Level, format string, args []interface{}) {
	if level > currentLevel {
		return
	}
	timeStr := time.Now().Format("2006-01-02 15:04:05.000") + " - "
	zaplogger.Log(zapLevels[level-MinLevel], timeStr+getMessage(format, args))
}

// TraceError logs the current goroutine's stack followed by a formatted error message.
func TraceError(format string, args ...interface{}) {
	Logf(ErrorLevel, "%s", []interface{}{string(debug.Stack())})
	Logf(ErrorLevel, format, args)
}

func Tracef(format string, args ...interface{}) { Logf(TraceLevel, format, args) }
func Debugf(format string, args ...interface{}) { Logf(DebugLevel, format, args) }
func Infof(format string, args ...interface{})  { Logf(InfoLevel, format, args) }
func Warnf(format string, args ...interface{})  { Logf(WarnLevel, format, args) }
func Errorf(format string, args ...interface{}) { Logf(ErrorLevel, format, args) }
func Panicf(format string, args ...interface{}) { Logf(PanicLevel, format, args) }
func Fatalf(format string, args ...interface{}) { Logf(FatalLevel, format, args) }

func FatalfIfError(err error, format string, args ...interface{}) {
	if err != nil {
		Fatalf(format, args...)
	}
}

func PanicfIfError(err error, format string, args ...interface{}) {
	if err != nil {
		Panicf(format, args...)
	}
}

type assertLogger struct{}

func (assertLogger) Errorf(format string, args ...interface{}) {
	Panicf(format, args...)
}

func AssertTrue(value bool, msgAndArgs ...interface{}) bool {
	return assert.True(assertLogger{}, value, msgAndArgs...)
}

func AssertFalse(value bool, msgAndArgs ...interface{}) bool {
	return assert.False(assertLogger{}, value, msgAndArgs...)
}

func AssertEqual(expected, actual interface{}, msgAndArgs ...interface{}) bool {
	return assert.Equal(assertLogger{}, expected, actual, msgAndArgs...)
}

func AssertNil(object interface{}, msgAndArgs ...interface{}) bool {
	return assert.Nil(assertLogger{}, object, msgAndArgs...)
}

func AssertNotNil(object interface{}, msgAndArgs ...interface{}) bool {
	return assert.NotNil(assertLogger{}, object, msgAndArgs...)
}
