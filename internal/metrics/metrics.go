// Package metrics provides Prometheus instrumentation for the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OrdersTotal counts order status changes by resulting status.
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "orders_total",
			Help:      "Order status changes by resulting status.",
		},
		[]string{"status"},
	)

	// WalletTransactionsTotal counts appended wallet transactions by type.
	WalletTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "wallet_transactions_total",
			Help:      "Wallet transactions appended by type.",
		},
		[]string{"type"},
	)

	// RefundsTotal counts processed refunds by type (full/partial).
	RefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "refunds_total",
			Help:      "Processed refunds by type.",
		},
		[]string{"type"},
	)

	// PayoutsTotal counts payout state changes by resulting status.
	PayoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "payouts_total",
			Help:      "Payout state changes by resulting status.",
		},
		[]string{"status"},
	)

	// TxConflictsTotal counts atomic units re-run after a concurrency conflict.
	TxConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "tx_conflicts_total",
			Help:      "Atomic units retried after a concurrency conflict.",
		},
	)

	// HTTPRequestsTotal counts HTTP requests by method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersTotal,
		WalletTransactionsTotal,
		RefundsTotal,
		PayoutsTotal,
		TxConflictsTotal,
		HTTPRequestsTotal,
	)
}
