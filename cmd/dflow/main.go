// Main command: one DFlow rank (datum store + rule engine + RPC surface).
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/NVIDIA/dflow/cmn"
	"github.com/NVIDIA/dflow/cmn/cos"
	"github.com/NVIDIA/dflow/cmn/nlog"
	"github.com/NVIDIA/dflow/node"
	"github.com/prometheus/client_golang/prometheus"
)

// Debugger hook: set DFLOW_GDB_RANK to a rank number and that rank spins
// here, pre-initialization, until a debugger attaches and flips the flag.
const envGdbRank = "DFLOW_GDB_RANK"

var gdbAttached bool

func gdbCheck(rank int) {
	s := os.Getenv(envGdbRank)
	if s == "" {
		return
	}
	gdbRank, err := strconv.Atoi(s)
	if err != nil {
		nlog.Errorf("invalid %s: %q", envGdbRank, s)
		os.Exit(1)
	}
	if gdbRank != rank {
		return
	}
	nlog.Infof("waiting for debugger: rank %d pid %d", rank, os.Getpid())
	for i := 0; !gdbAttached; i++ {
		time.Sleep(time.Second)
		if nlog.FastV(5) {
			nlog.Infof("gdb check: %d", i)
		}
	}
}

func main() {
	var (
		confPath = flag.String("config", "dflow.json", "path to cluster config")
		rank     = flag.Int("rank", -1, "override the configured rank")
	)
	flag.Parse()

	conf, err := cmn.LoadConfig(*confPath)
	if err != nil {
		nlog.Errorln(err)
		os.Exit(1)
	}
	if *rank >= 0 {
		conf.Rank = *rank
		if err := conf.Validate(); err != nil {
			nlog.Errorln(err)
			os.Exit(1)
		}
	}
	cmn.GCO.Put(conf)
	nlog.SetVerbosity(conf.LogLevel)
	cos.InitShortID(uint64(conf.Rank))
	nlog.Infof("session %s, config %s", cos.GenUUID(), cos.MustMarshal(conf))

	gdbCheck(conf.Rank)

	disp := node.NewChanDispatcher(func(w *cmn.WorkUnit) {
		// the executor proper is a separate service; a released unit is
		// handed off here
		nlog.Infof("dispatch %s %q (%d bytes)", w, w.Name, len(w.Payload))
	})
	go disp.Run()
	defer disp.Stop()

	n, err := node.New(conf, disp, prometheus.DefaultRegisterer)
	if err != nil {
		nlog.Errorln(err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		nlog.Errorln(err)
		os.Exit(1)
	}
	nlog.Infoln("done")
}
