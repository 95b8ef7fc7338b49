package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(votesTotal, proposalsClosedTotal) }

var (
	votesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_total",
			Help: "Vote submissions and withdrawals by outcome.",
		},
		[]string{"result"}, // e.g. 'cast', 'removed', 'ineligible', 'duplicate_vote'
	)

	proposalsClosedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proposals_closed_total",
			Help: "Proposals closed by the deadline worker.",
		},
	)
)

func IncVote(result string) {
	votesTotal.WithLabelValues(norm(result)).Inc()
}

func AddProposalsClosed(n int64) {
	proposalsClosedTotal.Add(float64(n))
}
