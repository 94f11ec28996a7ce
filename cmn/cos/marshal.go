// Package cos provides low-level utilities shared by all DFlow packages.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	jsoniter "github.com/json-iterator/go"
)

// MustMarshal marshals v and panics on error: only for types that cannot
// fail to serialize.
func MustMarshal(v any) []byte {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		panic("invalid object: " + err.Error())
	}
	return b
}
