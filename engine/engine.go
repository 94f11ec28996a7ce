// Package engine is the local dataflow rule engine.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package engine

import (
	"github.com/NVIDIA/dflow/cmn"
	"github.com/NVIDIA/dflow/cmn/debug"
	"github.com/NVIDIA/dflow/cmn/nlog"
	"github.com/prometheus/client_golang/prometheus"
)

// DataService is the engine's view of the distributed datum store. Calls
// are synchronous; RemoteSubscribe may block on network I/O.
type DataService interface {
	// Locate returns the rank of the server owning id (pure function).
	Locate(id cmn.DatumID) int
	// LocalSubscribe registers listener rank against the in-process store;
	// pending is false when the datum is already closed. A missing datum
	// returns a not-found error.
	LocalSubscribe(id cmn.DatumID, sub cmn.Subscript, rank int) (pending bool, err error)
	// RemoteSubscribe is the synchronous RPC equivalent against server.
	RemoteSubscribe(server int, id cmn.DatumID, sub cmn.Subscript) (pending bool, err error)
}

// Engine mediates concurrent completion events against a many-to-many
// blocker graph. It is single-threaded by contract: one driver invokes its
// methods; the only suspension points are the synchronous DataService calls.
type Engine struct {
	svc  DataService
	rank int

	// waiting transforms, keyed by work-unit id
	waiting map[cmn.WorkID]*transform

	// inputs blocking their transforms
	tdBlockers  idBlockers
	subBlockers subBlockers

	// outstanding remote subscriptions, to avoid re-subscribing; the local
	// store keeps its own per-datum listener list and is deliberately not
	// mirrored here (see subscribe)
	tdSubscribed  map[cmn.DatumID]struct{}
	subSubscribed map[string]struct{}

	stats *stats
}

const mapInitCapacity = 512

// New constructs an engine for the given local rank. Pass a nil registerer
// to keep the metrics unregistered (tests).
func New(rank int, svc DataService, reg prometheus.Registerer) *Engine {
	return &Engine{
		svc:           svc,
		rank:          rank,
		waiting:       make(map[cmn.WorkID]*transform, mapInitCapacity),
		tdBlockers:    make(idBlockers, mapInitCapacity),
		subBlockers:   make(subBlockers, mapInitCapacity),
		tdSubscribed:  make(map[cmn.DatumID]struct{}, mapInitCapacity),
		subSubscribed: make(map[string]struct{}, mapInitCapacity),
		stats:         newStats(reg),
	}
}

// NumWaiting returns the count of parked transforms.
func (e *Engine) NumWaiting() int { return len(e.waiting) }

// Rule admits one dataflow rule. Ownership of work transfers in; when the
// returned ready is true every input was already closed and ownership
// transfers right back to the caller, who must dispatch it. Otherwise the
// engine parks the rule until the last close notification arrives.
func (e *Engine) Rule(name string, tds []cmn.DatumID, tsubs []cmn.IdSub, work *cmn.WorkUnit) (ready bool, err error) {
	if work == nil {
		return false, cmn.NewErrInvalid("rule %q: nil work unit", name)
	}
	if _, ok := e.waiting[work.ID]; ok {
		return false, cmn.NewErrInvalid("rule %q: work unit %s already admitted", name, work)
	}

	t := newTransform(name, tds, tsubs, work)
	if err := e.ruleInputs(t); err != nil {
		return false, err
	}

	subscribed, err := e.progress(t)
	if err != nil {
		// the transform is already in the blocker lists; flagging it
		// released keeps a later drain from handing out work whose
		// admission the caller saw fail
		t.work, t.released = nil, true
		if nlog.FastV(4) {
			nlog.Errorf("rule admission failed: %s: %v", t, err)
		}
		return false, err
	}
	if nlog.FastV(4) {
		nlog.Infof("rule: %s %s", t, work)
	}

	e.stats.admitted.Inc()
	if subscribed {
		e.waiting[work.ID] = t
		e.stats.waiting.Inc()
		return false, nil
	}

	// all inputs closed at admission: the bookkeeping was never needed
	t.work, t.released = nil, true
	e.stats.readyAtAdmit.Inc()
	return true, nil
}

// ruleInputs records the transform in the blocker list of every input,
// before any subscription can observe a close. Inputs are validated up
// front: admission is transactional and must not touch the indices when it
// fails. Duplicate inputs insert duplicate entries on purpose:
// deduplicating here would cost a per-rule set allocation, and close
// reconciles them in one pass anyway.
func (e *Engine) ruleInputs(t *transform) error {
	for _, id := range t.tds {
		if id == cmn.NullID {
			return cmn.NewErrInvalid("rule %q: null input id", t.name)
		}
	}
	for _, in := range t.tsubs {
		if in.ID == cmn.NullID {
			return cmn.NewErrInvalid("rule %q: null input id", t.name)
		}
	}
	for _, id := range t.tds {
		e.tdBlockers.add(id, t)
	}
	for _, in := range t.tsubs {
		e.subBlockers.add(string(cmn.IdSubKey(in.ID, in.Sub)), t)
	}
	return nil
}

// subscribe registers interest in a future close of (id, sub); pending is
// false iff the input is already closed. A datum that was refcount-GCed is
// indistinguishable from a closed one and treated as such.
//
// Dedup is asymmetric: the local store keeps its own per-datum listener
// list, so local-path subscriptions consult the engine's sets but never
// update them; on the remote path the engine's set is the authority.
func (e *Engine) subscribe(id cmn.DatumID, sub cmn.Subscript) (pending bool, err error) {
	if id == cmn.NullID {
		return false, cmn.NewErrInvalid("subscribe: null id")
	}
	server := e.svc.Locate(id)

	if sub.Present() {
		key := string(cmn.IdSubKey(id, sub))
		if _, ok := e.subSubscribed[key]; ok {
			if nlog.FastV(5) {
				nlog.Infof("already subscribed: %s%s", id, sub)
			}
			return true, nil
		}
		if server == e.rank {
			return e.localSubscribe(id, sub)
		}
		pending, err = e.remoteSubscribe(server, id, sub)
		if err == nil && pending {
			e.subSubscribed[key] = struct{}{}
			e.stats.subscriptions.Inc()
		}
		return pending, err
	}

	if _, ok := e.tdSubscribed[id]; ok {
		return true, nil
	}
	if server == e.rank {
		return e.localSubscribe(id, cmn.NoSub)
	}
	pending, err = e.remoteSubscribe(server, id, cmn.NoSub)
	if err == nil && pending {
		e.tdSubscribed[id] = struct{}{}
		e.stats.subscriptions.Inc()
	}
	return pending, err
}

func (e *Engine) localSubscribe(id cmn.DatumID, sub cmn.Subscript) (bool, error) {
	pending, err := e.svc.LocalSubscribe(id, sub, e.rank)
	if cmn.IsErrNotFound(err) {
		// zero refcounts: the datum was written, consumed, and freed
		return false, nil
	}
	return pending, err
}

func (e *Engine) remoteSubscribe(server int, id cmn.DatumID, sub cmn.Subscript) (bool, error) {
	pending, err := e.svc.RemoteSubscribe(server, id, sub)
	if err == nil || cmn.IsErrNotFound(err) {
		return pending, nil
	}
	return false, cmn.NewErrUnknown("remote subscribe %s%s via rank %d: %v", id, sub, server, err)
}

// progress walks the blocker cursor forward, subscribing to the first
// still-open input. The cursor is an optimization, not a closedness
// oracle: bits past it may flip asynchronously via closeUpdate and are
// re-checked here.
func (e *Engine) progress(t *transform) (subscribed bool, err error) {
	nT := len(t.tds)
	for t.blocker < nT {
		if !t.inputClosed(t.blocker) {
			pending, err := e.subscribe(t.tds[t.blocker], cmn.NoSub)
			if err != nil {
				return false, err
			}
			if pending {
				return true, nil
			}
			t.markClosed(t.blocker)
		}
		t.blocker++
	}

	total := t.numInputs()
	for t.blocker < total {
		if !t.inputClosed(t.blocker) {
			in := t.tsubs[t.blocker-nT]
			pending, err := e.subscribe(in.ID, in.Sub)
			if err != nil {
				return false, err
			}
			if pending {
				return true, nil
			}
			t.markClosed(t.blocker)
		}
		t.blocker++
	}
	return false, nil
}

// Close consumes the close notification for a whole datum, appending every
// work unit it unblocks to ready (ownership transfers to the caller).
func (e *Engine) Close(id cmn.DatumID, ready *cmn.WorkArray) error {
	if nlog.FastV(4) {
		nlog.Infof("close %s", id)
	}
	if _, ok := e.tdSubscribed[id]; ok {
		delete(e.tdSubscribed, id)
		e.stats.subscriptions.Dec()
	}
	list, ok := e.tdBlockers.take(id)
	if !ok {
		// no rule blocks on this datum
		return nil
	}
	return e.closeUpdate(list, id, cmn.NoSub, ready)
}

// SubClose is Close for one subscript of a composite datum.
func (e *Engine) SubClose(id cmn.DatumID, sub cmn.Subscript, ready *cmn.WorkArray) error {
	if nlog.FastV(4) {
		nlog.Infof("close %s%s", id, sub)
	}
	key := string(cmn.IdSubKey(id, sub))
	if _, ok := e.subSubscribed[key]; ok {
		delete(e.subSubscribed, key)
		e.stats.subscriptions.Dec()
	}
	list, ok := e.subBlockers.take(key)
	if !ok {
		return nil
	}
	return e.closeUpdate(list, id, sub, ready)
}

// closeUpdate re-evaluates every transform the closed input was blocking,
// in list-append (= admission) order. Transforms released by an earlier
// close may still linger in this list via one of their other inputs; the
// released flag skips them.
func (e *Engine) closeUpdate(list []*transform, id cmn.DatumID, sub cmn.Subscript, ready *cmn.WorkArray) error {
	for _, t := range list {
		if t.released {
			continue
		}
		nT := len(t.tds)
		if !sub.Present() {
			// duplicate ids within one rule are all marked in this pass
			for i := t.blocker; i < nT; i++ {
				if t.tds[i] == id {
					t.markClosed(i)
				}
			}
		} else {
			first := max(0, t.blocker-nT)
			for j := first; j < len(t.tsubs); j++ {
				in := &t.tsubs[j]
				if in.ID == id && in.Sub.Equal(sub) {
					t.markClosed(nT + j)
				}
			}
		}

		subscribed, err := e.progress(t)
		if err != nil {
			return err
		}
		if subscribed {
			continue
		}

		if nlog.FastV(4) {
			nlog.Infof("ready: %s", t.work)
		}
		wid := t.work.ID
		ready.Append(t.work)
		t.work, t.released = nil, true
		_, ok := e.waiting[wid]
		debug.Assert(ok, "released transform was not parked: ", wid)
		delete(e.waiting, wid)
		e.stats.waiting.Dec()
		e.stats.readyOnClose.Inc()
	}
	return nil
}

// Fin reports transforms still parked (diagnostic) and drops all indices.
// Held work units are abandoned with their transforms.
func (e *Engine) Fin() {
	if len(e.waiting) != 0 {
		nlog.Warningf("finalizing with %d waiting transform(s):", len(e.waiting))
		for _, t := range e.waiting {
			nlog.Warningf("  %10s %s", t.work.String(), t.String())
		}
	}
	e.waiting = nil
	e.tdBlockers, e.subBlockers = nil, nil
	e.tdSubscribed, e.subSubscribed = nil, nil
}
