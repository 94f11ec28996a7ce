// Package transport provides synchronous intra-cluster RPC between DFlow
// ranks.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"github.com/NVIDIA/dflow/cmn"
	"github.com/NVIDIA/dflow/cmn/debug"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

const (
	PathSubscribe = "/v1/subscribe"
	PathClose     = "/v1/close"
	PathHealth    = "/v1/health"
	PathMetrics   = "/metrics"
)

// Client issues synchronous RPCs to peer ranks. Safe for concurrent use.
type Client struct {
	http *fasthttp.Client
	smap *cmn.Smap
	conf *cmn.Config
	rank int
}

func NewClient(conf *cmn.Config, smap *cmn.Smap) *Client {
	return &Client{
		http: &fasthttp.Client{
			Name:            "dflow-internal",
			MaxConnsPerHost: 128,
		},
		smap: smap,
		conf: conf,
		rank: conf.Rank,
	}
}

// Subscribe registers this rank's interest in (id, sub) with the owning
// server; pending is false when the input is already closed. A missing
// datum surfaces as the taxonomy's not-found error.
func (c *Client) Subscribe(server int, id cmn.DatumID, sub cmn.Subscript) (pending bool, err error) {
	req := SubscribeReq{ID: int64(id), Rank: c.rank, HasSub: sub.Present(), Sub: sub.Bytes()}
	body, err := c.do(server, PathSubscribe, req.Pack())
	if err != nil {
		return false, err
	}
	var resp SubscribeResp
	if err := resp.Unpack(body); err != nil {
		return false, err
	}
	switch code := cmn.Code(resp.Code); code {
	case cmn.Success:
		return resp.Pending, nil
	case cmn.CodeNotFound:
		return false, cmn.NewErrNotFound("datum %s at rank %d", id, server)
	default:
		return false, cmn.NewErr(code, "subscribe %s%s at rank %d", id, sub, server)
	}
}

// SendClose delivers a close notification to a listener rank.
func (c *Client) SendClose(listener int, id cmn.DatumID, sub cmn.Subscript) error {
	notif := CloseNotif{ID: int64(id), HasSub: sub.Present(), Sub: sub.Bytes()}
	body, err := c.do(listener, PathClose, notif.Pack())
	if err != nil {
		return err
	}
	var resp SubscribeResp
	if err := resp.Unpack(body); err != nil {
		return err
	}
	if code := cmn.Code(resp.Code); code != cmn.Success {
		return cmn.NewErr(code, "close %s%s at rank %d", id, sub, listener)
	}
	return nil
}

func (c *Client) do(rank int, path string, body []byte) (out []byte, err error) {
	debug.Assert(rank != c.rank, "rpc to self")
	url := c.smap.URL(rank)
	if url == "" {
		return nil, cmn.NewErrInvalid("no rank %d in cluster map v%d", rank, c.smap.Version)
	}

	req, resp := fasthttp.AcquireRequest(), fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.SetRequestURI(url + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/octet-stream")
	wire, ulen := maybeCompress(body, c.conf.Transport.CompressMin)
	if ulen != "" {
		req.Header.Set(hdrUncompressedLen, ulen)
	}
	req.SetBodyRaw(wire)

	if err := c.http.DoTimeout(req, resp, c.conf.Timeout()); err != nil {
		return nil, errors.Wrapf(err, "rpc %s to rank %d", path, rank)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, errors.Errorf("rpc %s to rank %d: http %d", path, rank, resp.StatusCode())
	}
	// resp body is released with resp
	out = append(out, resp.Body()...)
	return out, nil
}
