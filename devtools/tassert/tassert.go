// Package tassert provides test assertion helpers.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tassert

import (
	"fmt"
	"testing"
)

func CheckFatal(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func CheckError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func Errorf(t *testing.T, cond bool, format string, a ...any) {
	t.Helper()
	if !cond {
		t.Errorf(format, a...)
	}
}

func Fatalf(t *testing.T, cond bool, format string, a ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, a...)
	}
}

func SelectErr(t *testing.T, err error, verb string, errIsFatal bool) {
	t.Helper()
	if err == nil {
		return
	}
	msg := fmt.Sprintf("failed to %s: %v", verb, err)
	if errIsFatal {
		t.Fatal(msg)
	} else {
		t.Error(msg)
	}
}
