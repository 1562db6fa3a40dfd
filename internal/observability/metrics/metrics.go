package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of password login attempts.",
		},
		[]string{"result"},
	)

	SecondFactorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_second_factor_total",
			Help: "Total number of second-factor verification attempts.",
		},
		[]string{"method", "result"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Total number of attempts rejected by the rate limiter.",
		},
	)

	SessionsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_sessions_issued_total",
			Help: "Total number of sessions issued.",
		},
	)

	SessionValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_session_validations_total",
			Help: "Total number of bearer token validations.",
		},
		[]string{"result"},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		LoginsTotal,
		SecondFactorTotal,
		RateLimitedTotal,
		SessionsIssuedTotal,
		SessionValidationsTotal,
	)
}
