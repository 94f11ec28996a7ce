// Package debug provides assertions compiled into debug builds only.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
//go:build debug

package debug

import (
	"fmt"

	"github.com/NVIDIA/dflow/cmn/nlog"
)

const ON = true

func Assert(cond bool, a ...any) {
	if !cond {
		fail(fmt.Sprint(a...))
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		fail(fmt.Sprintf(format, a...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	if msg == "" {
		msg = "assertion failed"
	}
	nlog.Errorln("debug:", msg)
	panic(msg)
}
