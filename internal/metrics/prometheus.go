package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rwaledger_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rwaledger_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rwaledger_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Ledger metrics
	LedgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rwaledger_operations_total",
			Help: "Total number of ledger operations",
		},
		[]string{"operation", "code"}, // code: OK or the error code
	)

	LedgerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rwaledger_operation_duration_seconds",
			Help:    "Ledger operation latency in seconds, settlement leg included",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 20},
		},
		[]string{"operation"},
	)

	VersionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rwaledger_version_conflicts_total",
			Help: "Optimistic concurrency conflicts that triggered a retry",
		},
		[]string{"operation"},
	)

	InvestedAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rwaledger_invested_amount_total",
			Help: "Cash invested, in payout currency units",
		},
		[]string{"pool"},
	)

	DividendsClaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rwaledger_dividends_claimed_total",
			Help: "Dividend amount claimed, in payout currency units",
		},
		[]string{"pool"},
	)

	// Settlement metrics
	SettlementAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rwaledger_settlement_attempts_total",
			Help: "Settlement adapter calls by kind and outcome",
		},
		[]string{"kind", "status"}, // status: confirmed|failed
	)

	SettlementLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rwaledger_settlement_latency_seconds",
			Help:    "Settlement adapter call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"kind"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rwaledger_kafka_messages_total",
			Help: "Total Kafka messages",
		},
		[]string{"topic", "direction"}, // direction: produced|consumed
	)

	JournalRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rwaledger_journal_rows_total",
			Help: "Ledger events written to the ClickHouse journal",
		},
		[]string{"result"}, // inserted|requeued|dropped
	)
)

// Init registers all metrics with Prometheus
func Init() {
	// Worker metrics
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	// Ledger metrics
	prometheus.MustRegister(LedgerOperations)
	prometheus.MustRegister(LedgerOperationDuration)
	prometheus.MustRegister(VersionConflicts)
	prometheus.MustRegister(InvestedAmount)
	prometheus.MustRegister(DividendsClaimed)

	// Settlement metrics
	prometheus.MustRegister(SettlementAttempts)
	prometheus.MustRegister(SettlementLatency)

	// System metrics
	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(JournalRows)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordOperation records a ledger operation with its error code ("OK" on success)
func RecordOperation(operation, code string, duration time.Duration) {
	if code == "" {
		code = "OK"
	}
	LedgerOperations.WithLabelValues(operation, code).Inc()
	LedgerOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSettlement records one settlement adapter call
func RecordSettlement(kind, status string, latency time.Duration) {
	SettlementAttempts.WithLabelValues(kind, status).Inc()
	SettlementLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// RecordVersionConflict counts a retried optimistic concurrency conflict
func RecordVersionConflict(operation string) {
	VersionConflicts.WithLabelValues(operation).Inc()
}

// RecordJournalFlush counts one journal batch. Failed batches are requeued.
func RecordJournalFlush(rows, dropped int, err error) {
	if err != nil {
		JournalRows.WithLabelValues("requeued").Add(float64(rows))
	} else {
		JournalRows.WithLabelValues("inserted").Add(float64(rows))
	}
	if dropped > 0 {
		JournalRows.WithLabelValues("dropped").Add(float64(dropped))
	}
}
