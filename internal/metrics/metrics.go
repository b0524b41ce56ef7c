/*

Prometheus instrumentation for the liquidation engine. Registered on the
default registry and exposed through the web server's /metrics endpoint.

*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LiquidationsExecuted counts settled liquidations.
	LiquidationsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lqd_liquidations_executed_total",
		Help: "Total number of liquidations settled successfully",
	})

	// LiquidationFailures counts liquidation attempts rejected or failed, by reason.
	LiquidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lqd_liquidation_failures_total",
		Help: "Total number of failed liquidation attempts by reason",
	}, []string{"reason"})

	// OracleFallbackServed counts price lookups served from a degraded tier.
	OracleFallbackServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lqd_oracle_fallback_served_total",
		Help: "Total number of price quotes served from stale cache or static fallback",
	}, []string{"tier"})

	// AuctionBids counts bid attempts by outcome.
	AuctionBids = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lqd_auction_bids_total",
		Help: "Total number of Dutch auction bids by outcome",
	}, []string{"outcome"})

	// AuctionsOpened counts Dutch auctions started.
	AuctionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lqd_auctions_opened_total",
		Help: "Total number of Dutch auctions opened",
	})

	// EligibleLoans is the number of liquidation-eligible loans seen in the
	// latest monitor scan.
	EligibleLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lqd_eligible_loans",
		Help: "Liquidation-eligible loans in the latest scan",
	})

	// AtRiskLoans is the number of at-risk (but not yet eligible) loans seen
	// in the latest monitor scan.
	AtRiskLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lqd_at_risk_loans",
		Help: "At-risk loans in the latest scan",
	})
)
