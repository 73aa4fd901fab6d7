package graph

import (
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"sociohiro-backend/internal/logger"
	"sociohiro-backend/internal/telemetry"
)

// Guard holds the circuit breaker and request limiter for the Graph API.
// Clients are built per access token, so one Guard is created per process
// and handed to every client to keep breaker counts and limiter tokens
// across requests and tasks.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuard creates a guard allowing rps calls per second with the given
// burst. rps <= 0 disables the limiter.
func NewGuard(rps float64, burst int, metrics *telemetry.Metrics) *Guard {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	log := logger.With("component", "graph")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "InstagramGraphAPI",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// Only transient failures count against the breaker; a bad caption
		// or an expired token says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState(name, to.String())
		},
	})

	return &Guard{breaker: breaker, limiter: limiter}
}

// State reports the breaker state.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}
