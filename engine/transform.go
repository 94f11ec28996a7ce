// Package engine is the local dataflow rule engine: it holds submitted
// work back until every named input datum (or datum subscript) is closed,
// then releases the work to the caller for dispatch.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package engine

import (
	"strconv"
	"strings"

	"github.com/NVIDIA/dflow/cmn"
	"github.com/NVIDIA/dflow/cmn/debug"
)

// transform is the in-memory record of one pending rule.
type transform struct {
	name string
	work *cmn.WorkUnit // owned until release; nil afterwards

	tds   []cmn.DatumID // whole-datum inputs, in rule order
	tsubs []cmn.IdSub   // (id, subscript) inputs, in rule order

	// closed tracks all inputs in one bitmap: bit i for tds[i],
	// bit len(tds)+j for tsubs[j]
	closed []byte

	// blocker is the index of the first input not yet observed closed;
	// monotonically non-decreasing
	blocker int

	// released is set when ownership of work has been surrendered; stale
	// blocker-list entries check it on drain
	released bool
}

func newTransform(name string, tds []cmn.DatumID, tsubs []cmn.IdSub, work *cmn.WorkUnit) *transform {
	debug.Assert(work != nil)
	t := &transform{name: name, work: work}
	if len(tds) > 0 {
		t.tds = make([]cmn.DatumID, len(tds))
		copy(t.tds, tds)
	}
	if len(tsubs) > 0 {
		t.tsubs = make([]cmn.IdSub, len(tsubs))
		for j, in := range tsubs {
			t.tsubs[j] = cmn.IdSub{ID: in.ID, Sub: cmn.MakeSubscript(in.Sub.Bytes())}
		}
	}
	if n := t.numInputs(); n > 0 {
		t.closed = make([]byte, (n-1)/8+1)
	}
	return t
}

func (t *transform) numInputs() int { return len(t.tds) + len(t.tsubs) }

func (t *transform) inputClosed(i int) bool {
	debug.Assert(i >= 0)
	return t.closed[i/8]>>(uint(i)%8)&1 != 0
}

func (t *transform) markClosed(i int) {
	debug.Assert(i >= 0)
	t.closed[i/8] |= 1 << (uint(i) % 8)
}

func (t *transform) allClosed() bool {
	for i := 0; i < t.numInputs(); i++ {
		if !t.inputClosed(i) {
			return false
		}
	}
	return true
}

// String renders the rule with its blocking input highlighted, e.g.
// "f (7 /9/ 12[\"a\"])".
func (t *transform) String() string {
	var sb strings.Builder
	sb.WriteString(t.name)
	sb.WriteString(" (")
	for i, id := range t.tds {
		if i > 0 {
			sb.WriteByte(' ')
		}
		t.appendInput(&sb, strconv.FormatInt(int64(id), 10), i == t.blocker)
	}
	for j, in := range t.tsubs {
		if len(t.tds)+j > 0 {
			sb.WriteByte(' ')
		}
		s := strconv.FormatInt(int64(in.ID), 10) + in.Sub.String()
		t.appendInput(&sb, s, len(t.tds)+j == t.blocker)
	}
	sb.WriteByte(')')
	return sb.String()
}

func (*transform) appendInput(sb *strings.Builder, s string, blocking bool) {
	if blocking {
		sb.WriteByte('/')
	}
	sb.WriteString(s)
	if blocking {
		sb.WriteByte('/')
	}
}
