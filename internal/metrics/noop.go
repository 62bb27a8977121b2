package metrics

import "time"

var _ Recorder = (*NoopMetrics)(nil)

// NoopMetrics discards all recordings. Used when metrics are disabled
// and in tests.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (n *NoopMetrics) RecordCodeIssued(bool)                         {}
func (n *NoopMetrics) RecordCodeExchange(string)                     {}
func (n *NoopMetrics) RecordTokenPairIssued(string, time.Duration)   {}
func (n *NoopMetrics) RecordTokenRefresh(string)                     {}
func (n *NoopMetrics) RecordTokenValidation(string)                  {}
func (n *NoopMetrics) RecordTokenRevoked(string)                     {}
func (n *NoopMetrics) RecordGrantRevoked(string)                     {}
func (n *NoopMetrics) RecordReplayDetected()                         {}
func (n *NoopMetrics) SetActiveTokenPairsCount(int)                  {}
func (n *NoopMetrics) SetPendingCodesCount(int)                      {}
func (n *NoopMetrics) RecordDatabaseQueryError(string)               {}
