// Package metrics exposes Prometheus counters for the bill composer and catalog search.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the application collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	LinesAdded    prometheus.Counter
	LinesRemoved  prometheus.Counter
	BillsSaved    prometheus.Counter
	BillsCleared  prometheus.Counter
	UnitsDeducted prometheus.Counter
	UnitsRestored prometheus.Counter
	Searches      prometheus.Counter
	Rejected      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmpos", Subsystem: "bill", Name: "lines_added_total",
			Help: "Bill lines added to the active bill.",
		}),
		LinesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmpos", Subsystem: "bill", Name: "lines_removed_total",
			Help: "Bill lines removed from the active bill.",
		}),
		BillsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmpos", Subsystem: "bill", Name: "saved_total",
			Help: "Bills snapshotted to durable storage.",
		}),
		BillsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmpos", Subsystem: "bill", Name: "cleared_total",
			Help: "Active bills discarded.",
		}),
		UnitsDeducted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmpos", Subsystem: "stock", Name: "units_deducted_total",
			Help: "Atomic stock units deducted from the ledger.",
		}),
		UnitsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmpos", Subsystem: "stock", Name: "units_restored_total",
			Help: "Atomic stock units returned to the ledger.",
		}),
		Searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmpos", Subsystem: "catalog", Name: "searches_total",
			Help: "Catalog searches served.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmpos", Subsystem: "bill", Name: "rejected_total",
			Help: "Bill operations rejected, by operation.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.LinesAdded, m.LinesRemoved, m.BillsSaved, m.BillsCleared,
			m.UnitsDeducted, m.UnitsRestored, m.Searches, m.Rejected)
	}
	return m
}

func (m *Metrics) LineAdded(units int64) {
	if m == nil {
		return
	}
	m.LinesAdded.Inc()
	m.UnitsDeducted.Add(float64(units))
}

func (m *Metrics) LineRemoved() {
	if m == nil {
		return
	}
	m.LinesRemoved.Inc()
}

// StockDeducted records units taken out of the ledger outside of LineAdded.
func (m *Metrics) StockDeducted(units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.UnitsDeducted.Add(float64(units))
}

func (m *Metrics) StockRestored(units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.UnitsRestored.Add(float64(units))
}

func (m *Metrics) BillSaved() {
	if m == nil {
		return
	}
	m.BillsSaved.Inc()
}

func (m *Metrics) BillCleared() {
	if m == nil {
		return
	}
	m.BillsCleared.Inc()
}

func (m *Metrics) Searched() {
	if m == nil {
		return
	}
	m.Searches.Inc()
}

func (m *Metrics) Reject(op string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(op).Inc()
}
