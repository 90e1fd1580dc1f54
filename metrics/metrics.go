// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package metrics wires the domain's observability concern to
// github.com/prometheus/client_golang, the registry library used
// consistently across the retrieval pack's service-shaped repos
// (marmos91-dittofs, runZeroInc-sockstats). It is a supplement to spec.md —
// nothing in the spec names it, but nothing excludes it either, so it is
// carried the way every other ambient concern (logging, config) is.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"sixtop/mac"
)

// Recorder is a small wrapper struct around a dedicated registry, the same
// shape dittofs and sockstats use instead of registering directly against
// prometheus's global default registry.
type Recorder struct {
	Registry *prometheus.Registry

	TransactionsStarted  prometheus.Counter
	TransactionsByResult *prometheus.CounterVec
	EBSent               prometheus.Counter
	KASent               prometheus.Counter
	AutoCellsInstalled   prometheus.Counter
	ScheduleFreeEntries  prometheus.Gauge
}

// New builds a Recorder with its own registry and registers every metric.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		Registry: reg,
		TransactionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sixtop",
			Name:      "transactions_started_total",
			Help:      "Number of 6P transactions initiated via sixtop_request.",
		}),
		TransactionsByResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sixtop",
			Name:      "transactions_result_total",
			Help:      "Number of completed 6P transactions by terminal return code.",
		}, []string{"return_code"}),
		EBSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sixtop",
			Name:      "eb_sent_total",
			Help:      "Number of Enhanced Beacons sent.",
		}),
		KASent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sixtop",
			Name:      "ka_sent_total",
			Help:      "Number of Keep-Alives sent.",
		}),
		AutoCellsInstalled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sixtop",
			Name:      "auto_cells_installed_total",
			Help:      "Number of bootstrap auto-cells installed.",
		}),
		ScheduleFreeEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sixtop",
			Name:      "schedule_free_entries",
			Help:      "Current number of free schedule table entries.",
		}),
	}

	reg.MustRegister(
		r.TransactionsStarted,
		r.TransactionsByResult,
		r.EBSent,
		r.KASent,
		r.AutoCellsInstalled,
		r.ScheduleFreeEntries,
	)
	return r
}

// RecordResult observes a completed transaction's terminal return code.
func (r *Recorder) RecordResult(rc mac.ReturnCode) {
	if r == nil {
		return
	}
	r.TransactionsByResult.WithLabelValues(rc.String()).Inc()
}

// RecordStart observes a transaction initiated via sixtop_request.
func (r *Recorder) RecordStart() {
	if r == nil {
		return
	}
	r.TransactionsStarted.Inc()
}

// RecordAutoCell observes a bootstrap auto-cell install.
func (r *Recorder) RecordAutoCell() {
	if r == nil {
		return
	}
	r.AutoCellsInstalled.Inc()
}

// RecordEB observes an Enhanced Beacon having been sent.
func (r *Recorder) RecordEB() {
	if r == nil {
		return
	}
	r.EBSent.Inc()
}

// RecordKA observes a Keep-Alive having been sent.
func (r *Recorder) RecordKA() {
	if r == nil {
		return
	}
	r.KASent.Inc()
}

// SetScheduleFreeEntries records the schedule table's current free-entry
// count.
func (r *Recorder) SetScheduleFreeEntries(n uint16) {
	if r == nil {
		return
	}
	r.ScheduleFreeEntries.Set(float64(n))
}
