// Package engine is the local dataflow rule engine.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package engine

import (
	"strconv"

	"github.com/NVIDIA/dflow/cmn"
)

// mockSvc stands in for the datum store and the remote RPC path. By
// default every datum is local and open; tests mark data closed, missing,
// or owned by a remote rank.
type mockSvc struct {
	owner      map[cmn.DatumID]int
	closed     map[string]struct{}
	missing    map[cmn.DatumID]struct{}
	failing    map[cmn.DatumID]struct{}
	localSubs  []string
	remoteSubs []string
	localRank  int
}

// interface guard
var _ DataService = (*mockSvc)(nil)

func newMockSvc(localRank int) *mockSvc {
	return &mockSvc{
		localRank: localRank,
		owner:     make(map[cmn.DatumID]int),
		closed:    make(map[string]struct{}),
		missing:   make(map[cmn.DatumID]struct{}),
		failing:   make(map[cmn.DatumID]struct{}),
	}
}

func mkey(id cmn.DatumID, sub cmn.Subscript) string {
	if !sub.Present() {
		return strconv.FormatInt(int64(id), 10)
	}
	return string(cmn.IdSubKey(id, sub))
}

func (m *mockSvc) close(id cmn.DatumID, sub cmn.Subscript) {
	m.closed[mkey(id, sub)] = struct{}{}
}

func (m *mockSvc) Locate(id cmn.DatumID) int {
	if rank, ok := m.owner[id]; ok {
		return rank
	}
	return m.localRank
}

func (m *mockSvc) LocalSubscribe(id cmn.DatumID, sub cmn.Subscript, _ int) (bool, error) {
	if _, ok := m.missing[id]; ok {
		return false, cmn.NewErrNotFound("datum %s", id)
	}
	if _, ok := m.closed[mkey(id, sub)]; ok {
		return false, nil
	}
	m.localSubs = append(m.localSubs, mkey(id, sub))
	return true, nil
}

func (m *mockSvc) RemoteSubscribe(_ int, id cmn.DatumID, sub cmn.Subscript) (bool, error) {
	if _, ok := m.failing[id]; ok {
		return false, cmn.NewErrUnknown("rpc to owner of %s", id)
	}
	if _, ok := m.missing[id]; ok {
		return false, cmn.NewErrNotFound("datum %s", id)
	}
	if _, ok := m.closed[mkey(id, sub)]; ok {
		return false, nil
	}
	m.remoteSubs = append(m.remoteSubs, mkey(id, sub))
	return true, nil
}
