package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus collectors for the authorization server.
type Metrics struct {
	// Authorization code flow
	CodesIssuedTotal  *prometheus.CounterVec
	CodeExchangeTotal *prometheus.CounterVec
	CodesPending      prometheus.Gauge

	// Tokens
	TokenPairsIssuedTotal   *prometheus.CounterVec
	TokenRefreshTotal       *prometheus.CounterVec
	TokenValidationTotal    *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokenPairsActive        prometheus.Gauge
	TokenGenerationDuration prometheus.Histogram

	// Grants
	GrantsRevokedTotal   *prometheus.CounterVec
	ReplaysDetectedTotal prometheus.Counter

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns the process-wide Recorder. Prometheus collectors are
// registered once; with enabled=false a zero-overhead noop is returned.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}
	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		CodesIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_codes_issued_total",
				Help: "Total number of authorization codes issued",
			},
			[]string{"result"}, // success, error
		),
		CodeExchangeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_code_exchange_total",
				Help: "Total number of authorization code exchange attempts",
			},
			[]string{"result"}, // success, expired, consumed, mismatch, invalid
		),
		CodesPending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "oauth_authorization_codes_pending",
				Help: "Current number of unconsumed, unexpired authorization codes",
			},
		),

		TokenPairsIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_pairs_issued_total",
				Help: "Total number of token pairs issued",
			},
			[]string{"grant_type"}, // authorization_code, refresh_token
		),
		TokenRefreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_refresh_total",
				Help: "Total number of refresh token rotation attempts",
			},
			[]string{"result"}, // success, expired, unknown, scope_escalation, replay
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_validation_total",
				Help: "Total number of access token validations",
			},
			[]string{"result"}, // valid, expired, unknown
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_revoked_total",
				Help: "Total number of token revocations",
			},
			[]string{"reason"}, // user_request, replay, exchange_failure, admin
		),
		TokenPairsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "oauth_token_pairs_active",
				Help: "Current number of active token pairs",
			},
		),
		TokenGenerationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oauth_token_generation_duration_seconds",
				Help:    "Time taken to generate and persist a token pair",
				Buckets: prometheus.DefBuckets,
			},
		),

		GrantsRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_grants_revoked_total",
				Help: "Total number of grant-wide cascade revocations",
			},
			[]string{"reason"}, // user_request, replay, exchange_failure, admin
		),
		ReplaysDetectedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "oauth_replays_detected_total",
				Help: "Total number of rotated-token replay detections",
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				Buckets: []float64{
					0.001, 0.005, 0.010, 0.025, 0.050,
					0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
				},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),

		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors during metric collection",
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) RecordCodeIssued(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.CodesIssuedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCodeExchange(result string) {
	m.CodeExchangeTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTokenPairIssued(grantType string, generationTime time.Duration) {
	m.TokenPairsIssuedTotal.WithLabelValues(grantType).Inc()
	m.TokenGenerationDuration.Observe(generationTime.Seconds())
}

func (m *Metrics) RecordTokenRefresh(result string) {
	m.TokenRefreshTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTokenValidation(result string) {
	m.TokenValidationTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTokenRevoked(reason string) {
	m.TokensRevokedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordGrantRevoked(reason string) {
	m.GrantsRevokedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordReplayDetected() {
	m.ReplaysDetectedTotal.Inc()
}

func (m *Metrics) SetActiveTokenPairsCount(count int) {
	m.TokenPairsActive.Set(float64(count))
}

func (m *Metrics) SetPendingCodesCount(count int) {
	m.CodesPending.Set(float64(count))
}

func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
