// Package engine is the local dataflow rule engine.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package engine

import (
	"github.com/NVIDIA/dflow/cmn"
	"github.com/prometheus/client_golang/prometheus"
)

// The engine is a process-wide singleton: ownership transfer of work units
// (exactly one holder at any time) depends on there being one set of
// indices per process. The public entry points below route through the
// process-scoped handle constructed by Init and destroyed by Fin.

var gEng *Engine

func Init(rank int, svc DataService, reg prometheus.Registerer) error {
	if gEng != nil {
		return cmn.NewErrInvalid("engine already initialized")
	}
	gEng = New(rank, svc, reg)
	return nil
}

func Initialized() bool { return gEng != nil }

func Rule(name string, tds []cmn.DatumID, tsubs []cmn.IdSub, work *cmn.WorkUnit) (bool, error) {
	if gEng == nil {
		return false, cmn.NewErrUninitialized("engine")
	}
	return gEng.Rule(name, tds, tsubs, work)
}

func Close(id cmn.DatumID, ready *cmn.WorkArray) error {
	if gEng == nil {
		return cmn.NewErrUninitialized("engine")
	}
	return gEng.Close(id, ready)
}

func SubClose(id cmn.DatumID, sub cmn.Subscript, ready *cmn.WorkArray) error {
	if gEng == nil {
		return cmn.NewErrUninitialized("engine")
	}
	return gEng.SubClose(id, sub, ready)
}

func Fin() {
	if gEng == nil {
		return
	}
	gEng.Fin()
	gEng = nil
}
