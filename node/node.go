// Package node runs one rank of the DFlow runtime: the local datum store,
// the rule engine, and the intra-cluster RPC surface, wired together.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package node

import (
	"context"
	"net/url"
	"sync"

	"github.com/NVIDIA/dflow/cmn"
	"github.com/NVIDIA/dflow/cmn/nlog"
	"github.com/NVIDIA/dflow/data"
	"github.com/NVIDIA/dflow/engine"
	"github.com/NVIDIA/dflow/transport"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Dispatcher consumes ready work units; ownership transfers on the call.
type Dispatcher interface {
	Dispatch(w *cmn.WorkUnit)
}

type Node struct {
	conf   *cmn.Config
	smap   *cmn.Smap
	store  *data.Store
	eng    *engine.Engine
	client *transport.Client
	server *transport.Server
	disp   Dispatcher

	// the engine is single-threaded by contract; RPC handlers and the
	// local driver take this mutex at engine call boundaries
	emtx sync.Mutex
}

// interface guards
var (
	_ engine.DataService = (*Node)(nil)
	_ transport.Backend  = (*Node)(nil)
)

// New wires one rank together; pass a nil registerer to keep the engine
// metrics unregistered (tests).
func New(conf *cmn.Config, disp Dispatcher, reg prometheus.Registerer) (*Node, error) {
	store, err := data.NewStore()
	if err != nil {
		return nil, err
	}
	n := &Node{
		conf:  conf,
		smap:  conf.NewSmap(),
		store: store,
		disp:  disp,
	}
	n.client = transport.NewClient(conf, n.smap)
	n.eng = engine.New(conf.Rank, n, reg)
	n.server = transport.NewServer(n)
	return n, nil
}

// Run serves intra-cluster RPC until ctx is canceled.
func (n *Node) Run(ctx context.Context) error {
	addr, err := listenAddr(n.smap.URL(n.conf.Rank))
	if err != nil {
		return err
	}
	nlog.Infof("rank %d of %d starting", n.conf.Rank, n.smap.Count())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.server.Listen(addr) })
	g.Go(func() error {
		<-ctx.Done()
		return n.server.Shutdown()
	})
	err = g.Wait()

	n.emtx.Lock()
	n.eng.Fin()
	n.emtx.Unlock()
	n.store.Term()
	return err
}

//
// local driver API
//

// SubmitRule admits one rule; when every input is already closed the work
// unit goes straight to the dispatcher.
func (n *Node) SubmitRule(name string, tds []cmn.DatumID, tsubs []cmn.IdSub, work *cmn.WorkUnit) error {
	n.emtx.Lock()
	ready, err := n.eng.Rule(name, tds, tsubs, work)
	n.emtx.Unlock()
	if err != nil {
		return err
	}
	if ready {
		n.disp.Dispatch(work)
	}
	return nil
}

func (n *Node) Declare(id cmn.DatumID) error { return n.store.Declare(id) }

// WriteClose writes and seals a whole datum, then fans the close out to
// every listener rank (including, possibly, this one).
func (n *Node) WriteClose(id cmn.DatumID, val []byte) error {
	ranks, err := n.store.WriteClose(id, val)
	if err != nil {
		return err
	}
	return n.fanout(id, cmn.NoSub, ranks)
}

// WriteCloseSub is WriteClose for one subscript of a composite datum.
func (n *Node) WriteCloseSub(id cmn.DatumID, sub cmn.Subscript, val []byte) error {
	ranks, err := n.store.WriteCloseSub(id, sub, val)
	if err != nil {
		return err
	}
	return n.fanout(id, sub, ranks)
}

func (n *Node) fanout(id cmn.DatumID, sub cmn.Subscript, ranks []int) error {
	for _, rank := range ranks {
		if rank == n.conf.Rank {
			if err := n.HandleClose(id, sub); err != nil {
				return err
			}
			continue
		}
		if err := n.client.SendClose(rank, id, sub); err != nil {
			return err
		}
	}
	return nil
}

//
// engine.DataService
//

func (n *Node) Locate(id cmn.DatumID) int { return data.Locate(id, n.smap) }

func (n *Node) LocalSubscribe(id cmn.DatumID, sub cmn.Subscript, rank int) (bool, error) {
	return n.store.Subscribe(id, sub, rank)
}

func (n *Node) RemoteSubscribe(server int, id cmn.DatumID, sub cmn.Subscript) (bool, error) {
	return n.client.Subscribe(server, id, sub)
}

//
// transport.Backend
//

func (n *Node) HandleSubscribe(id cmn.DatumID, sub cmn.Subscript, rank int) (bool, error) {
	return n.store.Subscribe(id, sub, rank)
}

// HandleClose drives the engine with a close notification and dispatches
// every work unit it released.
func (n *Node) HandleClose(id cmn.DatumID, sub cmn.Subscript) error {
	var ready cmn.WorkArray
	n.emtx.Lock()
	var err error
	if sub.Present() {
		err = n.eng.SubClose(id, sub, &ready)
	} else {
		err = n.eng.Close(id, &ready)
	}
	n.emtx.Unlock()
	if err != nil {
		return err
	}
	for _, w := range ready.Drain() {
		n.disp.Dispatch(w)
	}
	return nil
}

func listenAddr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", cmn.NewErrInvalid("bad cluster URL %q", rawURL)
	}
	return u.Host, nil
}
