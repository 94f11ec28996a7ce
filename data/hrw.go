// Package data implements the local write-once datum store and rank
// placement for the DFlow runtime.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package data

import (
	"encoding/binary"

	"github.com/NVIDIA/dflow/cmn"
	"github.com/NVIDIA/dflow/cmn/debug"
	"github.com/OneOfOne/xxhash"
)

// Locate maps a datum onto its owning rank via rendezvous hashing: every
// rank scores the id with a per-rank seed and the highest score wins. Pure
// function of (id, smap) - all ranks agree without coordination.
func Locate(id cmn.DatumID, smap *cmn.Smap) (rank int) {
	debug.Assert(smap.Count() > 0)
	var (
		b   [8]byte
		max uint64
	)
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	for r := range smap.Ranks {
		cs := xxhash.Checksum64S(b[:], uint64(r)+1)
		if cs > max {
			max, rank = cs, r
		}
	}
	return rank
}
