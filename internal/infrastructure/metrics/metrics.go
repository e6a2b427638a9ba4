package metrics

import (
	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "ledger"

type Metrics struct {
	Registry *prometheus.Registry

	outboxDelivered *prometheus.CounterVec
	outboxBacklog   *prometheus.GaugeVec
	outboxExhausted prometheus.Gauge
	reconciled      *prometheus.CounterVec
	compensated     *prometheus.CounterVec
	alerts          *prometheus.CounterVec
}

var _ infrastructure.Recorder = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		outboxDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox delivery attempts by path (hybrid, polling) and result.",
		}, []string{"path", "result"}),
		outboxBacklog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "rows",
			Help:      "Outbox rows by status.",
		}, []string{"status"}),
		outboxExhausted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "exhausted_rows",
			Help:      "SEND_FAIL rows that ran out of retries.",
		}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "payments_total",
			Help:      "Audited payments by outcome.",
		}, []string{"outcome"}),
		compensated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compensation",
			Name:      "messages_total",
			Help:      "Compensation messages by outcome.",
		}, []string{"outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Operator alerts by severity.",
		}, []string{"severity"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.outboxDelivered,
		m.outboxBacklog,
		m.outboxExhausted,
		m.reconciled,
		m.compensated,
		m.alerts,
	)

	return m
}

func (m *Metrics) OutboxDelivered(path string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}

	m.outboxDelivered.WithLabelValues(path, result).Inc()
}

func (m *Metrics) OutboxBacklog(status entity.OutboxStatus, n int64) {
	m.outboxBacklog.WithLabelValues(string(status)).Set(float64(n))
}

func (m *Metrics) OutboxExhausted(n int64) {
	m.outboxExhausted.Set(float64(n))
}

func (m *Metrics) Reconciled(outcome string) {
	m.reconciled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Compensated(outcome string) {
	m.compensated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AlertRaised(severity entity.Severity) {
	m.alerts.WithLabelValues(string(severity)).Inc()
}

type nop struct{}

// Nop discards every observation.
func Nop() infrastructure.Recorder { return nop{} }

func (nop) OutboxDelivered(string, bool)             {}
func (nop) OutboxBacklog(entity.OutboxStatus, int64) {}
func (nop) OutboxExhausted(int64)                    {}
func (nop) Reconciled(string)                        {}
func (nop) Compensated(string)                       {}
func (nop) AlertRaised(entity.Severity)              {}
