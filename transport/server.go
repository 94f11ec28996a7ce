// Package transport provides synchronous intra-cluster RPC between DFlow
// ranks.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"github.com/NVIDIA/dflow/cmn"
	"github.com/NVIDIA/dflow/cmn/nlog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Backend is the node-side handler of incoming RPCs.
type Backend interface {
	// HandleSubscribe services a remote rank's subscription against the
	// local datum store.
	HandleSubscribe(id cmn.DatumID, sub cmn.Subscript, rank int) (pending bool, err error)
	// HandleClose consumes a close notification addressed to this rank's
	// engine.
	HandleClose(id cmn.DatumID, sub cmn.Subscript) error
}

type Server struct {
	backend Backend
	srv     *fasthttp.Server
	metrics fasthttp.RequestHandler
}

func NewServer(b Backend) *Server {
	s := &Server{
		backend: b,
		metrics: fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
	}
	s.srv = &fasthttp.Server{
		Handler: s.route,
		Name:    "dflow",
	}
	return s
}

// Listen blocks serving addr until Shutdown.
func (s *Server) Listen(addr string) error {
	nlog.Infoln("intra-cluster server listening on", addr)
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error { return s.srv.Shutdown() }

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case PathSubscribe:
		s.handleSubscribe(ctx)
	case PathClose:
		s.handleClose(ctx)
	case PathHealth:
		ctx.SetStatusCode(fasthttp.StatusOK)
	case PathMetrics:
		s.metrics(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) body(ctx *fasthttp.RequestCtx) ([]byte, bool) {
	ulen := string(ctx.Request.Header.Peek(hdrUncompressedLen))
	body, err := decompress(ctx.PostBody(), ulen)
	if err != nil {
		nlog.Errorln("bad request body:", err)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (s *Server) handleSubscribe(ctx *fasthttp.RequestCtx) {
	body, ok := s.body(ctx)
	if !ok {
		return
	}
	var req SubscribeReq
	if err := req.Unpack(body); err != nil {
		nlog.Errorln(err)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	pending, err := s.backend.HandleSubscribe(cmn.DatumID(req.ID), req.Subscript(), req.Rank)
	reply(ctx, SubscribeResp{Code: int(cmn.ErrCode(err)), Pending: pending})
}

func (s *Server) handleClose(ctx *fasthttp.RequestCtx) {
	body, ok := s.body(ctx)
	if !ok {
		return
	}
	var notif CloseNotif
	if err := notif.Unpack(body); err != nil {
		nlog.Errorln(err)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	err := s.backend.HandleClose(cmn.DatumID(notif.ID), notif.Subscript())
	reply(ctx, SubscribeResp{Code: int(cmn.ErrCode(err))})
}

func reply(ctx *fasthttp.RequestCtx, resp SubscribeResp) {
	ctx.SetContentType("application/octet-stream")
	ctx.SetBody(resp.Pack())
}
