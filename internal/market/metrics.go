package market

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_reconcile_total",
			Help: "Reconciliation attempts by result",
		},
		[]string{"result"},
	)
	listingsAddedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "market_listings_added_total",
			Help: "Listings created locally",
		},
	)
	persistErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_persist_errors_total",
			Help: "Failed writes to the listing cache storage",
		},
		[]string{"key"},
	)
)

func init() {
	prometheus.MustRegister(reconcileTotal)
	prometheus.MustRegister(listingsAddedTotal)
	prometheus.MustRegister(persistErrorsTotal)
}
