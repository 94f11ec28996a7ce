// Package cmn provides common constants, types, and utilities for DFlow
// engines, data servers, and clients.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"errors"
	"fmt"
)

// Code is the wire-stable result taxonomy shared by the engine, the datum
// store, and intra-cluster transport. Peers may be built from different
// revisions; never renumber.
type Code int

const (
	Success Code = iota
	CodeOutOfMemory
	CodeDoubleDeclare
	CodeDoubleWrite
	CodeUnset
	CodeNotFound
	CodeNumberFormat
	CodeInvalid
	CodeNull
	CodeUnknown
	CodeType
	CodeStorage
	CodeUninitialized
)

var codeNames = [...]string{
	Success:           "success",
	CodeOutOfMemory:   "out-of-memory",
	CodeDoubleDeclare: "double-declare",
	CodeDoubleWrite:   "double-write",
	CodeUnset:         "unset",
	CodeNotFound:      "not-found",
	CodeNumberFormat:  "number-format",
	CodeInvalid:       "invalid",
	CodeNull:          "null",
	CodeUnknown:       "unknown",
	CodeType:          "type",
	CodeStorage:       "storage",
	CodeUninitialized: "uninitialized",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", int(c))
}

type (
	Err struct {
		msg  string
		code Code
	}
)

// interface guard
var _ error = (*Err)(nil)

func NewErr(code Code, format string, a ...any) *Err {
	return &Err{code: code, msg: fmt.Sprintf(format, a...)}
}

func (e *Err) Error() string {
	if e.msg == "" {
		return e.code.String()
	}
	return e.code.String() + ": " + e.msg
}

func (e *Err) Code() Code { return e.code }

// ErrCode maps any error onto the wire taxonomy: nil is Success and a
// non-taxonomy error is CodeUnknown.
func ErrCode(err error) Code {
	if err == nil {
		return Success
	}
	var e *Err
	if errors.As(err, &e) {
		return e.code
	}
	return CodeUnknown
}

func IsErrNotFound(err error) bool      { return ErrCode(err) == CodeNotFound }
func IsErrDoubleWrite(err error) bool   { return ErrCode(err) == CodeDoubleWrite }
func IsErrUninitialized(err error) bool { return ErrCode(err) == CodeUninitialized }

func NewErrNotFound(format string, a ...any) *Err {
	return NewErr(CodeNotFound, format, a...)
}

func NewErrInvalid(format string, a ...any) *Err {
	return NewErr(CodeInvalid, format, a...)
}

func NewErrUnknown(format string, a ...any) *Err {
	return NewErr(CodeUnknown, format, a...)
}

func NewErrUninitialized(what string) *Err {
	return NewErr(CodeUninitialized, "%s is not initialized", what)
}

func NewErrDoubleDeclare(id DatumID) *Err {
	return NewErr(CodeDoubleDeclare, "datum %s already declared", id)
}

func NewErrDoubleWrite(id DatumID, sub Subscript) *Err {
	if sub.Present() {
		return NewErr(CodeDoubleWrite, "datum %s[%q] already written", id, sub.Bytes())
	}
	return NewErr(CodeDoubleWrite, "datum %s already written", id)
}

func NewErrUnset(id DatumID) *Err {
	return NewErr(CodeUnset, "datum %s declared but not yet written", id)
}
