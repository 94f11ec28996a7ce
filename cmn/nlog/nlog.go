// Package nlog is the DFlow logger: severity-prefixed, timestamped lines
// on stderr with a settable verbosity for module-level debug tracing.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	sevInfo    = 'I'
	sevWarning = 'W'
	sevError   = 'E'
)

var (
	mu        sync.Mutex
	out       = os.Stderr
	verbosity atomic.Int32
)

// SetVerbosity raises (or lowers) the threshold consulted by FastV.
func SetVerbosity(v int) { verbosity.Store(int32(v)) }

// FastV gates hot-path debug logging; compare with a per-callsite level.
func FastV(v int) bool { return verbosity.Load() >= int32(v) }

func Infoln(a ...any)                  { write(sevInfo, fmt.Sprintln(a...)) }
func Infof(format string, a ...any)    { write(sevInfo, fmt.Sprintf(format+"\n", a...)) }
func Warningln(a ...any)               { write(sevWarning, fmt.Sprintln(a...)) }
func Warningf(format string, a ...any) { write(sevWarning, fmt.Sprintf(format+"\n", a...)) }
func Errorln(a ...any)                 { write(sevError, fmt.Sprintln(a...)) }
func Errorf(format string, a ...any)   { write(sevError, fmt.Sprintf(format+"\n", a...)) }

func write(sev byte, line string) {
	now := time.Now()
	mu.Lock()
	fmt.Fprintf(out, "%c %s %s", sev, now.Format("15:04:05.000000"), line)
	mu.Unlock()
}
