// Package cos provides low-level utilities shared by all DFlow packages.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"github.com/teris-io/shortid"
)

const (
	// alphabet for generating session IDs
	lenShortID = 9
	alphabet   = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"
)

var sid *shortid.Shortid

// InitShortID must run once, before the first GenUUID.
func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, alphabet, seed)
}

// GenUUID returns a URL- and filename-friendly short unique ID that always
// starts with an alphanumeric byte.
func GenUUID() (uuid string) {
	var h, t byte
	uuid = sid.MustGenerate()
	h, t = uuid[0], uuid[len(uuid)-1]
	if isAlpha(h) && isAlpha(t) {
		return
	}
	return "u" + uuid[1:] + "z"
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
