package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BottlesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bottlebot",
		Name:      "bottles_submitted_total",
		Help:      "Bottles accepted into the queue, by origin kind.",
	}, []string{"origin"})

	BottlesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bottlebot",
		Name:      "bottles_matched_total",
		Help:      "Pairs formed by a successful claim.",
	})

	ClaimRaces = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bottlebot",
		Name:      "claim_races_lost_total",
		Help:      "Claims that lost to a concurrent matcher and were retried.",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bottlebot",
		Name:      "deliveries_total",
		Help:      "Delivery attempts, by result.",
	}, []string{"result"})

	BottlesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bottlebot",
		Name:      "bottles_expired_total",
		Help:      "Pending bottles moved to expired.",
	})

	Reactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bottlebot",
		Name:      "reactions_counted_total",
		Help:      "Reaction records flipped, by direction.",
	}, []string{"direction"})
)
