// Package engine is the local dataflow rule engine.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type stats struct {
	admitted      prometheus.Counter
	readyAtAdmit  prometheus.Counter
	readyOnClose  prometheus.Counter
	waiting       prometheus.Gauge
	subscriptions prometheus.Gauge
}

// newStats creates the engine collectors; with a nil registerer they stay
// unregistered, which tests rely on.
func newStats(reg prometheus.Registerer) *stats {
	f := promauto.With(reg)
	return &stats{
		admitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dflow", Subsystem: "engine", Name: "rules_admitted_total",
			Help: "Rules admitted via submit-rule.",
		}),
		readyAtAdmit: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dflow", Subsystem: "engine", Name: "ready_at_admit_total",
			Help: "Rules whose inputs were all closed at admission.",
		}),
		readyOnClose: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dflow", Subsystem: "engine", Name: "ready_on_close_total",
			Help: "Work units released by close notifications.",
		}),
		waiting: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dflow", Subsystem: "engine", Name: "transforms_waiting",
			Help: "Transforms parked awaiting input closes.",
		}),
		subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dflow", Subsystem: "engine", Name: "subscriptions_outstanding",
			Help: "Outstanding remote subscriptions.",
		}),
	}
}
