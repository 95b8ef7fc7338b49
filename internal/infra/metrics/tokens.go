package metrics

import (
	"membership-access/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		tokensIssuedTotal,
		tokenRedemptionsTotal,
		tokensTotal,
	)
}

var (
	tokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Access tokens issued, by tier.",
		},
		[]string{"tier"},
	)

	tokenRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_redemptions_total",
			Help: "Redemption attempts by outcome.",
		},
		[]string{"result"}, // 'success', 'not_found', 'already_used', 'expired', 'validation_error', 'internal'
	)

	tokensTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokens_total",
			Help: "Current number of access tokens by display status.",
		},
		[]string{"status"},
	)
)

func IncTokenIssued(tier string) {
	tokensIssuedTotal.WithLabelValues(norm(tier)).Inc()
}

func IncTokenRedemption(result string) {
	tokenRedemptionsTotal.WithLabelValues(norm(result)).Inc()
}

// SetTokenCounts replaces the gauge; statuses missing from counts are reported as zero.
func SetTokenCounts(counts map[model.TokenStatus]int) {
	for _, st := range []model.TokenStatus{model.TokenStatusUnused, model.TokenStatusUsed, model.TokenStatusExpired} {
		tokensTotal.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
