package link

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkvault_links_created_total",
		Help: "Share links created.",
	})

	linkResolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkvault_link_resolves_total",
		Help: "Link resolve attempts by outcome.",
	}, []string{"outcome"})

	linkRevocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkvault_link_revocations_total",
		Help: "Link revoke requests by result.",
	}, []string{"result"})
)

func observeResolve(outcome string) {
	linkResolvesTotal.WithLabelValues(outcome).Inc()
}

func observeRevoke(result string) {
	linkRevocationsTotal.WithLabelValues(result).Inc()
}
