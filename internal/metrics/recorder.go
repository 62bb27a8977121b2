package metrics

import "time"

// Common result and reason label values.
const (
	resultSuccess = "success"
	resultError   = "error"

	ResultSuccess         = resultSuccess
	ResultExpired         = "expired"
	ResultConsumed        = "consumed"
	ResultMismatch        = "mismatch"
	ResultInvalid         = "invalid"
	ResultUnknown         = "unknown"
	ResultValid           = "valid"
	ResultScopeEscalation = "scope_escalation"
	ResultReplay          = "replay"

	ReasonUserRequest     = "user_request"
	ReasonReplay          = "replay"
	ReasonExchangeFailure = "exchange_failure"
	ReasonAdmin           = "admin"
)

// Recorder is the interface services record metrics through. Implementations
// are Metrics (Prometheus) and NoopMetrics (metrics disabled).
type Recorder interface {
	// Authorization code flow
	RecordCodeIssued(success bool)
	RecordCodeExchange(result string) // success, expired, consumed, mismatch, invalid

	// Token operations
	RecordTokenPairIssued(grantType string, generationTime time.Duration)
	RecordTokenRefresh(result string) // success, expired, unknown, scope_escalation, replay
	RecordTokenValidation(result string) // valid, expired, unknown
	RecordTokenRevoked(reason string) // user_request, replay, exchange_failure, admin

	// Grant lifecycle
	RecordGrantRevoked(reason string)
	RecordReplayDetected()

	// Gauge setters (periodic refresh job)
	SetActiveTokenPairsCount(count int)
	SetPendingCodesCount(count int)

	// Database
	RecordDatabaseQueryError(operation string)
}
