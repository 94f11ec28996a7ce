// Package node runs one rank of the DFlow runtime.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package node

import (
	"github.com/NVIDIA/dflow/cmn"
	"github.com/NVIDIA/dflow/cmn/cos"
	"github.com/NVIDIA/dflow/cmn/nlog"
)

// WorkFunc executes one released work unit.
type WorkFunc func(w *cmn.WorkUnit)

// ChanDispatcher decouples the engine's release path from execution: the
// engine driver must not block behind a slow executor.
type ChanDispatcher struct {
	workCh chan *cmn.WorkUnit
	fn     WorkFunc
	stopCh *cos.StopCh
}

// interface guard
var _ Dispatcher = (*ChanDispatcher)(nil)

const dispatchBurst = 256

func NewChanDispatcher(fn WorkFunc) *ChanDispatcher {
	return &ChanDispatcher{
		workCh: make(chan *cmn.WorkUnit, dispatchBurst),
		fn:     fn,
		stopCh: cos.NewStopCh(),
	}
}

func (d *ChanDispatcher) Dispatch(w *cmn.WorkUnit) { d.workCh <- w }

func (d *ChanDispatcher) Run() {
	for {
		select {
		case w := <-d.workCh:
			d.fn(w)
		case <-d.stopCh.Listen():
			// drain what the engine already released
			for {
				select {
				case w := <-d.workCh:
					d.fn(w)
				default:
					return
				}
			}
		}
	}
}

func (d *ChanDispatcher) Stop() {
	nlog.Infoln("stopping dispatcher")
	d.stopCh.Close()
}
