// Package transport provides synchronous intra-cluster RPC between DFlow
// ranks.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"strconv"

	"github.com/NVIDIA/dflow/cmn"
	lz4 "github.com/pierrec/lz4/v3"
)

// Bodies at or above the configured threshold travel LZ4-compressed; the
// uncompressed length rides in this header and doubles as the flag.
const hdrUncompressedLen = "X-Dflow-Ulen"

// maybeCompress returns (body, "") when compression is off, not worth it,
// or ineffective; otherwise (block, original length).
func maybeCompress(body []byte, threshold int) ([]byte, string) {
	if threshold <= 0 || len(body) < threshold {
		return body, ""
	}
	var (
		ht  = make([]int, 1<<16)
		dst = make([]byte, lz4.CompressBlockBound(len(body)))
	)
	n, err := lz4.CompressBlock(body, dst, ht)
	if err != nil || n == 0 || n >= len(body) {
		return body, ""
	}
	return dst[:n], strconv.Itoa(len(body))
}

// decompress reverses maybeCompress given the header value.
func decompress(body []byte, ulen string) ([]byte, error) {
	if ulen == "" {
		return body, nil
	}
	size, err := strconv.Atoi(ulen)
	if err != nil || size < 0 {
		return nil, cmn.NewErr(cmn.CodeNumberFormat, "bad %s header %q", hdrUncompressedLen, ulen)
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, cmn.NewErr(cmn.CodeNumberFormat, "lz4 decompress: %v", err)
	}
	return dst[:n], nil
}
