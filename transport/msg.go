// Package transport provides synchronous intra-cluster RPC between DFlow
// ranks: remote datum subscriptions and close-notification fan-out.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"github.com/NVIDIA/dflow/cmn"
	"github.com/tinylib/msgp/msgp"
)

// Wire messages are flat msgpack sequences (no field maps): both ends are
// always built from the same tree, and the bodies stay small enough to
// batch. Field order is part of the format.

type (
	SubscribeReq struct {
		Sub    []byte
		ID     int64
		Rank   int
		HasSub bool
	}

	SubscribeResp struct {
		Code    int
		Pending bool
	}

	CloseNotif struct {
		Sub    []byte
		ID     int64
		HasSub bool
	}
)

func (m *SubscribeReq) Pack() []byte {
	b := make([]byte, 0, 24+len(m.Sub))
	b = msgp.AppendInt64(b, m.ID)
	b = msgp.AppendInt(b, m.Rank)
	b = msgp.AppendBool(b, m.HasSub)
	return msgp.AppendBytes(b, m.Sub)
}

func (m *SubscribeReq) Unpack(b []byte) (err error) {
	if m.ID, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return unpackErr("subscribe-req.id", err)
	}
	if m.Rank, b, err = msgp.ReadIntBytes(b); err != nil {
		return unpackErr("subscribe-req.rank", err)
	}
	if m.HasSub, b, err = msgp.ReadBoolBytes(b); err != nil {
		return unpackErr("subscribe-req.has-sub", err)
	}
	if m.Sub, _, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return unpackErr("subscribe-req.sub", err)
	}
	return nil
}

func (m *SubscribeResp) Pack() []byte {
	b := make([]byte, 0, 8)
	b = msgp.AppendInt(b, m.Code)
	return msgp.AppendBool(b, m.Pending)
}

func (m *SubscribeResp) Unpack(b []byte) (err error) {
	if m.Code, b, err = msgp.ReadIntBytes(b); err != nil {
		return unpackErr("subscribe-resp.code", err)
	}
	if m.Pending, _, err = msgp.ReadBoolBytes(b); err != nil {
		return unpackErr("subscribe-resp.pending", err)
	}
	return nil
}

func (m *CloseNotif) Pack() []byte {
	b := make([]byte, 0, 16+len(m.Sub))
	b = msgp.AppendInt64(b, m.ID)
	b = msgp.AppendBool(b, m.HasSub)
	return msgp.AppendBytes(b, m.Sub)
}

func (m *CloseNotif) Unpack(b []byte) (err error) {
	if m.ID, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return unpackErr("close-notif.id", err)
	}
	if m.HasSub, b, err = msgp.ReadBoolBytes(b); err != nil {
		return unpackErr("close-notif.has-sub", err)
	}
	if m.Sub, _, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return unpackErr("close-notif.sub", err)
	}
	return nil
}

func (m *CloseNotif) Subscript() cmn.Subscript {
	if !m.HasSub {
		return cmn.NoSub
	}
	return cmn.MakeSubscript(m.Sub)
}

func (m *SubscribeReq) Subscript() cmn.Subscript {
	if !m.HasSub {
		return cmn.NoSub
	}
	return cmn.MakeSubscript(m.Sub)
}

func unpackErr(field string, err error) error {
	return cmn.NewErr(cmn.CodeNumberFormat, "bad wire message: %s: %v", field, err)
}
