package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"rwaledger/pkg/logger"
)

// LedgerCollector reads ledger state gauges from postgres at scrape time
type LedgerCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB

	pools          *prometheus.Desc
	activeHoldings *prometheus.Desc
	settlements    *prometheus.Desc
	distributions  *prometheus.Desc
}

// NewLedgerCollector creates a collector over the ledger database
func NewLedgerCollector(log *logger.Logger, postgres *sqlx.DB) *LedgerCollector {
	return &LedgerCollector{
		log:      log,
		postgres: postgres,

		pools: prometheus.NewDesc(
			"rwaledger_pools",
			"Number of pools by status",
			[]string{"status"}, nil,
		),
		activeHoldings: prometheus.NewDesc(
			"rwaledger_active_holdings",
			"Number of active holdings",
			nil, nil,
		),
		settlements: prometheus.NewDesc(
			"rwaledger_settlements",
			"Settlement legs by kind and status",
			[]string{"kind", "status"}, nil,
		),
		distributions: prometheus.NewDesc(
			"rwaledger_distributions",
			"Distributions by status",
			[]string{"status"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pools
	ch <- c.activeHoldings
	ch <- c.settlements
	ch <- c.distributions
}

// Collect implements prometheus.Collector
func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectByStatus(ctx, ch, c.pools, "SELECT status, COUNT(*) AS count FROM pools GROUP BY status")
	c.collectByStatus(ctx, ch, c.distributions, "SELECT status, COUNT(*) AS count FROM distributions GROUP BY status")
	c.collectActiveHoldings(ctx, ch)
	c.collectSettlements(ctx, ch)
}

func (c *LedgerCollector) collectByStatus(ctx context.Context, ch chan<- prometheus.Metric, desc *prometheus.Desc, query string) {
	var rows []struct {
		Status string `db:"status"`
		Count  int64  `db:"count"`
	}
	if err := c.postgres.SelectContext(ctx, &rows, query); err != nil {
		c.log.Warnw("Failed to collect status metric", "query", query, "error", err)
		return
	}
	for _, r := range rows {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(r.Count), r.Status)
	}
}

func (c *LedgerCollector) collectActiveHoldings(ctx context.Context, ch chan<- prometheus.Metric) {
	var count int64
	if err := c.postgres.GetContext(ctx, &count, "SELECT COUNT(*) FROM holdings WHERE is_active"); err != nil {
		c.log.Warnw("Failed to collect active holdings metric", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.activeHoldings, prometheus.GaugeValue, float64(count))
}

func (c *LedgerCollector) collectSettlements(ctx context.Context, ch chan<- prometheus.Metric) {
	var rows []struct {
		Kind   string `db:"kind"`
		Status string `db:"status"`
		Count  int64  `db:"count"`
	}
	err := c.postgres.SelectContext(ctx, &rows,
		"SELECT kind, status, COUNT(*) AS count FROM settlements GROUP BY kind, status")
	if err != nil {
		c.log.Warnw("Failed to collect settlement metric", "error", err)
		return
	}
	for _, r := range rows {
		ch <- prometheus.MustNewConstMetric(c.settlements, prometheus.GaugeValue, float64(r.Count), r.Kind, r.Status)
	}
}

// RegisterLedgerCollector registers the ledger collector
func RegisterLedgerCollector(collector *LedgerCollector) {
	prometheus.MustRegister(collector)
}
