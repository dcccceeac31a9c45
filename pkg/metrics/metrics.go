package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	RequestCount       *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	Operations         *prometheus.CounterVec
	PendingWithdrawals prometheus.Gauge
	WithdrawalOutcomes *prometheus.CounterVec
	Compensations      prometheus.Counter
	GovernanceForwards *prometheus.CounterVec
	CustodyRequests    *prometheus.CounterVec
	CustodyLatency     prometheus.Histogram
	TotalSupply        prometheus.Gauge
	TotalVotingPower   prometheus.Gauge
	ContractViolations prometheus.Counter
	PersistenceErrors  prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staking_api_requests_total",
				Help: "The total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "staking_api_request_duration_seconds",
				Help:    "Duration of API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staking_operations_total",
				Help: "The total number of staking operations by outcome",
			},
			[]string{"operation", "status"},
		),
		PendingWithdrawals: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "staking_pending_withdrawals",
				Help: "Withdrawals debited locally and awaiting the custody result",
			},
		),
		WithdrawalOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staking_withdrawal_outcomes_total",
				Help: "Completed withdrawals by custody outcome",
			},
			[]string{"outcome"},
		),
		Compensations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "staking_compensations_total",
				Help: "The total number of compensating credits applied after failed transfers",
			},
		),
		GovernanceForwards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staking_governance_forwards_total",
				Help: "Forwarded governance calls by kind and status",
			},
			[]string{"kind", "status"},
		),
		CustodyRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staking_custody_requests_total",
				Help: "Requests sent to the token custody service",
			},
			[]string{"endpoint", "status"},
		),
		CustodyLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "staking_custody_request_duration_seconds",
				Help:    "Duration of custody service requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		TotalSupply: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "staking_total_supply",
				Help: "Total number of staked tokens",
			},
		),
		TotalVotingPower: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "staking_total_voting_power",
				Help: "Sum of staked amounts times their vote weights",
			},
		),
		ContractViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "staking_callback_contract_violations_total",
				Help: "Withdrawal callbacks that did not carry exactly one result",
			},
		),
		PersistenceErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "staking_persistence_errors_total",
				Help: "Failed attempts to persist state changes",
			},
		),
	}

	c.registry.MustRegister(
		c.RequestCount,
		c.RequestDuration,
		c.Operations,
		c.PendingWithdrawals,
		c.WithdrawalOutcomes,
		c.Compensations,
		c.GovernanceForwards,
		c.CustodyRequests,
		c.CustodyLatency,
		c.TotalSupply,
		c.TotalVotingPower,
		c.ContractViolations,
		c.PersistenceErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RecordAPIRequest(method, path string, status int, duration time.Duration) {
	c.RequestCount.WithLabelValues(method, path, statusLabel(status)).Inc()
	c.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) RecordOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.Operations.WithLabelValues(operation, status).Inc()
}

func (c *Collector) RecordWithdrawalOutcome(outcome string) {
	c.WithdrawalOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordGovernanceForward(kind string, success bool) {
	c.GovernanceForwards.WithLabelValues(kind, successLabel(success)).Inc()
}

func (c *Collector) RecordCustodyRequest(endpoint string, success bool, duration time.Duration) {
	c.CustodyRequests.WithLabelValues(endpoint, successLabel(success)).Inc()
	c.CustodyLatency.Observe(duration.Seconds())
}

func (c *Collector) UpdateTotals(supply, votingPower uint64) {
	c.TotalSupply.Set(float64(supply))
	c.TotalVotingPower.Set(float64(votingPower))
}

func (c *Collector) SetPendingWithdrawals(n int) {
	c.PendingWithdrawals.Set(float64(n))
}

func statusLabel(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return strconv.Itoa(status)
}

func successLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
