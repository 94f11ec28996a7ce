// Package data implements the local write-once datum store and rank
// placement for the DFlow runtime.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package data

import (
	"fmt"
	"sort"
	"sync"

	"github.com/NVIDIA/dflow/cmn"
	"github.com/NVIDIA/dflow/cmn/debug"
	"github.com/NVIDIA/dflow/cmn/nlog"
	"github.com/tidwall/buntdb"
)

// Store keeps the data items this rank owns. Payload bytes live in an
// in-memory buntdb instance; datum state (closed flags, listener ranks,
// refcounts) lives beside it. Data items are write-once: a second write or
// close of the same key is a caller error.
//
// Listener bookkeeping is per-datum and per-rank: a rank subscribing twice
// is recorded once. The engine's own dedup sets deliberately do not mirror
// the local path for exactly this reason.
type Store struct {
	db  *buntdb.DB
	m   map[cmn.DatumID]*datum
	mtx sync.Mutex
}

type datum struct {
	listeners    map[int]struct{}            // whole-datum listener ranks
	subListeners map[string]map[int]struct{} // per-subscript listener ranks
	subsWritten  map[string]struct{}         // written subscripts
	subsClosed   map[string]struct{}         // closed subscripts
	wref, rref   int
	written      bool
	closed       bool
}

func NewStore() (*Store, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, cmn.NewErr(cmn.CodeStorage, "failed to open datum db: %v", err)
	}
	return &Store{db: db, m: make(map[cmn.DatumID]*datum, 1024)}, nil
}

// Term shuts the store down; pending listeners are dropped.
func (s *Store) Term() {
	s.mtx.Lock()
	s.m = nil
	s.mtx.Unlock()
	if err := s.db.Close(); err != nil {
		nlog.Errorln("datum db close:", err)
	}
}

func payloadKey(id cmn.DatumID, sub cmn.Subscript) string {
	if !sub.Present() {
		return fmt.Sprintf("td/%d", int64(id))
	}
	return fmt.Sprintf("td/%d/%x", int64(id), sub.Bytes())
}

// Declare creates the datum with one write and one read reference.
func (s *Store) Declare(id cmn.DatumID) error {
	if id == cmn.NullID {
		return cmn.NewErrInvalid("declare: null id")
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.m[id]; ok {
		return cmn.NewErrDoubleDeclare(id)
	}
	s.m[id] = &datum{
		listeners:    make(map[int]struct{}, 4),
		subListeners: make(map[string]map[int]struct{}),
		subsWritten:  make(map[string]struct{}),
		subsClosed:   make(map[string]struct{}),
		wref:         1,
		rref:         1,
	}
	return nil
}

// Write stores the whole-datum payload; Close must follow to release
// waiters (or use WriteClose).
func (s *Store) Write(id cmn.DatumID, val []byte) error {
	s.mtx.Lock()
	d, ok := s.m[id]
	if !ok {
		s.mtx.Unlock()
		return cmn.NewErrNotFound("datum %s", id)
	}
	if d.written || d.closed {
		s.mtx.Unlock()
		return cmn.NewErrDoubleWrite(id, cmn.NoSub)
	}
	d.written = true
	s.mtx.Unlock()
	return s.put(payloadKey(id, cmn.NoSub), val)
}

// WriteSub stores one subscript of a composite datum.
func (s *Store) WriteSub(id cmn.DatumID, sub cmn.Subscript, val []byte) error {
	debug.Assert(sub.Present())
	key := string(cmn.IdSubKey(id, sub))
	s.mtx.Lock()
	d, ok := s.m[id]
	if !ok {
		s.mtx.Unlock()
		return cmn.NewErrNotFound("datum %s", id)
	}
	if _, written := d.subsWritten[key]; written || d.closed {
		s.mtx.Unlock()
		return cmn.NewErrDoubleWrite(id, sub)
	}
	d.subsWritten[key] = struct{}{}
	s.mtx.Unlock()
	return s.put(payloadKey(id, sub), val)
}

// Close seals the whole datum and returns the ranks to notify, ascending.
// One write reference is released; a fully-released datum is GCed.
func (s *Store) Close(id cmn.DatumID) (ranks []int, err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	d, ok := s.m[id]
	if !ok {
		return nil, cmn.NewErrNotFound("datum %s", id)
	}
	if d.closed {
		return nil, cmn.NewErrDoubleWrite(id, cmn.NoSub)
	}
	d.closed = true
	ranks = drain(d.listeners)
	d.wref--
	s.maybeGC(id, d)
	return ranks, nil
}

// CloseSub seals one subscript and returns the ranks to notify, ascending.
func (s *Store) CloseSub(id cmn.DatumID, sub cmn.Subscript) (ranks []int, err error) {
	debug.Assert(sub.Present())
	key := string(cmn.IdSubKey(id, sub))
	s.mtx.Lock()
	defer s.mtx.Unlock()
	d, ok := s.m[id]
	if !ok {
		return nil, cmn.NewErrNotFound("datum %s", id)
	}
	if _, ok := d.subsClosed[key]; ok || d.closed {
		return nil, cmn.NewErrDoubleWrite(id, sub)
	}
	d.subsClosed[key] = struct{}{}
	if ls, ok := d.subListeners[key]; ok {
		ranks = drain(ls)
		delete(d.subListeners, key)
	}
	return ranks, nil
}

// WriteClose fuses Write and Close, the common case for scalar data.
func (s *Store) WriteClose(id cmn.DatumID, val []byte) ([]int, error) {
	if err := s.Write(id, val); err != nil {
		return nil, err
	}
	return s.Close(id)
}

// WriteCloseSub fuses WriteSub and CloseSub.
func (s *Store) WriteCloseSub(id cmn.DatumID, sub cmn.Subscript, val []byte) ([]int, error) {
	if err := s.WriteSub(id, sub, val); err != nil {
		return nil, err
	}
	return s.CloseSub(id, sub)
}

// Subscribe registers listener rank for a future close of (id, sub);
// pending is false when the input is already closed. A GCed datum returns
// not-found, which subscribers treat as closed.
func (s *Store) Subscribe(id cmn.DatumID, sub cmn.Subscript, rank int) (pending bool, err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	d, ok := s.m[id]
	if !ok {
		return false, cmn.NewErrNotFound("datum %s", id)
	}
	if d.closed {
		return false, nil
	}
	if !sub.Present() {
		d.listeners[rank] = struct{}{}
		return true, nil
	}
	key := string(cmn.IdSubKey(id, sub))
	if _, ok := d.subsClosed[key]; ok {
		return false, nil
	}
	ls, ok := d.subListeners[key]
	if !ok {
		ls = make(map[int]struct{}, 4)
		d.subListeners[key] = ls
	}
	ls[rank] = struct{}{}
	return true, nil
}

// Get reads a payload; Unset distinguishes declared-but-unwritten.
func (s *Store) Get(id cmn.DatumID, sub cmn.Subscript) ([]byte, error) {
	s.mtx.Lock()
	d, ok := s.m[id]
	if !ok {
		s.mtx.Unlock()
		return nil, cmn.NewErrNotFound("datum %s", id)
	}
	if !sub.Present() && !d.written {
		s.mtx.Unlock()
		return nil, cmn.NewErrUnset(id)
	}
	s.mtx.Unlock()

	var val []byte
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(payloadKey(id, sub))
		if err != nil {
			return err
		}
		val = []byte(v)
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, cmn.NewErrUnset(id)
	}
	if err != nil {
		return nil, cmn.NewErr(cmn.CodeStorage, "get %s%s: %v", id, sub, err)
	}
	return val, nil
}

// DecrRef releases one read reference; the last reference GCs the datum.
func (s *Store) DecrRef(id cmn.DatumID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	d, ok := s.m[id]
	if !ok {
		return cmn.NewErrNotFound("datum %s", id)
	}
	d.rref--
	debug.Assert(d.rref >= 0)
	s.maybeGC(id, d)
	return nil
}

// under lock
func (s *Store) maybeGC(id cmn.DatumID, d *datum) {
	if d.wref > 0 || d.rref > 0 {
		return
	}
	debug.Assert(len(d.listeners) == 0)
	delete(s.m, id)
	s.evict(id)
}

func (s *Store) put(key string, val []byte) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(val), nil)
		return err
	})
	if err != nil {
		return cmn.NewErr(cmn.CodeStorage, "put %s: %v", key, err)
	}
	return nil
}

// evict drops all payloads of one datum from the db.
func (s *Store) evict(id cmn.DatumID) {
	var (
		exact  = payloadKey(id, cmn.NoSub)
		prefix = exact + "/"
		keys   []string
	)
	err := s.db.Update(func(tx *buntdb.Tx) error {
		keys = keys[:0]
		if err := tx.AscendKeys(prefix+"*", func(k, _ string) bool {
			keys = append(keys, k)
			return true
		}); err != nil {
			return err
		}
		keys = append(keys, exact)
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
	if err != nil {
		nlog.Errorf("failed to evict %s: %v", id, err)
	}
}

func drain(ls map[int]struct{}) (ranks []int) {
	if len(ls) == 0 {
		return nil
	}
	ranks = make([]int, 0, len(ls))
	for r := range ls {
		delete(ls, r)
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	return ranks
}
