// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsSet bundles the send path's prometheus instrumentation,
// following the vendoring pattern several pack members use directly
// (runZeroInc-sockstats, distribution-distribution, and the quic-go
// forks). Registered against an injectable prometheus.Registerer so
// tests can use a private registry rather than colliding on
// prometheus.DefaultRegisterer.
type metricsSet struct {
	bytesInFlight    prometheus.Gauge
	congestionWindow prometheus.Gauge
	smoothedRTT      prometheus.Gauge
	retransmitCount  prometheus.Counter
}

// newMetricsSet creates and registers a metricsSet against reg. If reg
// is nil, a private prometheus.NewRegistry() is used so the caller need
// not worry about collisions with other Conns or tests.
func newMetricsSet(reg prometheus.Registerer) *metricsSet {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metricsSet{
		bytesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kwik_quic",
			Name:      "bytes_in_flight",
			Help:      "Bytes currently in flight, unacknowledged and unresent.",
		}),
		congestionWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kwik_quic",
			Name:      "congestion_window_bytes",
			Help:      "Current congestion window size in bytes.",
		}),
		smoothedRTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kwik_quic",
			Name:      "smoothed_rtt_seconds",
			Help:      "Current smoothed round-trip time estimate.",
		}),
		retransmitCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kwik_quic",
			Name:      "retransmits_total",
			Help:      "Total packets declared lost and retransmitted.",
		}),
	}
	reg.MustRegister(m.bytesInFlight, m.congestionWindow, m.smoothedRTT, m.retransmitCount)
	return m
}
