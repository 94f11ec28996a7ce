// Package vint implements the variable-length signed integer encoding used
// by composite datum keys and the intra-cluster wire format.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package vint

import "github.com/pkg/errors"

// Encoding, least significant bits first:
//   first byte:       6 value bits | sign (0x40) | continuation (0x80)
//   subsequent bytes: 7 value bits | continuation (0x80)

const (
	moreMask = 0x80
	signMask = 0x40
	mask6    = 0x3f
	mask7    = 0x7f
)

// MaxBytes is the largest encoded size of an int64 (one bit of overhead
// per byte).
const MaxBytes = 10

var (
	ErrTruncated = errors.New("vint: truncated buffer")
	ErrOverflow  = errors.New("vint: value overflows int64")
)

// magnitude avoids the MinInt64 negation trap: |MinInt64| fits uint64.
func magnitude(val int64) uint64 {
	u := uint64(val)
	if val < 0 {
		u = ^u + 1
	}
	return u
}

// Bytes returns the encoded length of val.
func Bytes(val int64) int {
	n := 1
	mag := magnitude(val) >> 6
	for mag != 0 {
		mag >>= 7
		n++
	}
	return n
}

// Encode writes val into buf, which must have room for Bytes(val), and
// returns the number of bytes written.
func Encode(val int64, buf []byte) int {
	mag := magnitude(val)

	b := byte(mag & mask6)
	mag >>= 6
	if val < 0 {
		b |= signMask
	}
	more := mag != 0
	if more {
		b |= moreMask
	}
	buf[0] = b

	pos := 1
	for more {
		b = byte(mag & mask7)
		mag >>= 7
		more = mag != 0
		if more {
			b |= moreMask
		}
		buf[pos] = b
		pos++
	}
	return pos
}

// Append encodes val at the end of buf.
func Append(buf []byte, val int64) []byte {
	var tmp [MaxBytes]byte
	n := Encode(val, tmp[:])
	return append(buf, tmp[:n]...)
}

// Decode reads one encoded integer from the front of buf, returning the
// value and the number of bytes consumed.
func Decode(buf []byte) (val int64, n int, err error) {
	if len(buf) == 0 {
		return 0, 0, ErrTruncated
	}
	var (
		b        = buf[0]
		negative = b&signMask != 0
		accum    = uint64(b & mask6)
		shift    = uint(6)
	)
	n = 1
	for b&moreMask != 0 {
		if n >= len(buf) {
			return 0, 0, errors.Wrapf(ErrTruncated, "at byte %d", n)
		}
		b = buf[n]
		n++
		if shift > 63 {
			return 0, 0, ErrOverflow
		}
		accum += uint64(b&mask7) << shift
		shift += 7
	}
	if negative {
		return -int64(accum), n, nil
	}
	return int64(accum), n, nil
}
