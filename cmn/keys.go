// Package cmn provides common constants, types, and utilities for DFlow
// engines, data servers, and clients.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"github.com/NVIDIA/dflow/cmn/vint"
)

// IdSubKey produces the canonical byte key for an (id, subscript) pair:
//
//	vint(id) || vint(len(sub)) || sub
//
// The format is wire-stable: data servers and engines on different ranks
// must reconstruct identical bytes for the same pair.
func IdSubKey(id DatumID, sub Subscript) []byte {
	b := make([]byte, 0, vint.MaxBytes*2+sub.Len())
	b = vint.Append(b, int64(id))
	b = vint.Append(b, int64(sub.Len()))
	return append(b, sub.Bytes()...)
}

// ParseIdSubKey is the inverse of IdSubKey for a present subscript. NoSub
// and the empty subscript encode to the same bytes; both parse back as the
// empty (present) subscript.
func ParseIdSubKey(key []byte) (id DatumID, sub Subscript, err error) {
	rawID, n, err := vint.Decode(key)
	if err != nil {
		return 0, NoSub, NewErr(CodeNumberFormat, "id-sub key: %v", err)
	}
	length, m, err := vint.Decode(key[n:])
	if err != nil {
		return 0, NoSub, NewErr(CodeNumberFormat, "id-sub key: %v", err)
	}
	rest := key[n+m:]
	if length < 0 || int64(len(rest)) != length {
		return 0, NoSub, NewErr(CodeNumberFormat, "id-sub key: bad subscript length %d", length)
	}
	return DatumID(rawID), MakeSubscript(rest), nil
}
