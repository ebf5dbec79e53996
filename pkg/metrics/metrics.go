// Package metrics provides Prometheus metrics for the Laurel service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerificationsTotal tracks completed verifications by disposition
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "pipeline",
			Name:      "verifications_total",
			Help:      "Total number of completed verifications by status and match type",
		},
		[]string{"document_type", "status", "match_type"},
	)

	// VerificationDuration tracks end-to-end pipeline duration in seconds
	VerificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "laurel",
			Subsystem: "pipeline",
			Name:      "verification_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"document_type"},
	)

	// ClaimsRejectedTotal tracks claims rejected before the pipeline ran
	ClaimsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "pipeline",
			Name:      "claims_rejected_total",
			Help:      "Total number of claims rejected as invalid before matching",
		},
		[]string{"document_type"},
	)

	// FuzzyCandidatesScored tracks candidate page sizes per fuzzy attempt
	FuzzyCandidatesScored = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "laurel",
			Subsystem: "matching",
			Name:      "fuzzy_candidates_scored",
			Help:      "Number of candidates scored per fuzzy match attempt",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 300, 500},
		},
		[]string{"document_type"},
	)

	// RecordUpsertsTotal tracks authoritative record writes by outcome
	RecordUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "registry",
			Name:      "record_upserts_total",
			Help:      "Total number of authoritative record upserts by outcome",
		},
		[]string{"document_type", "outcome"},
	)

	// RecordCacheEvents tracks read-through record cache lookups
	RecordCacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "cache",
			Name:      "record_lookups_total",
			Help:      "Total number of record cache lookups by result",
		},
		[]string{"result"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesConsumed tracks Kafka messages handled by consumers
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka by result",
		},
		[]string{"topic", "result"},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "laurel",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// RecordVerification records one completed pipeline run
func RecordVerification(documentType, status, matchType string, durationSeconds float64) {
	VerificationsTotal.WithLabelValues(documentType, status, matchType).Inc()
	VerificationDuration.WithLabelValues(documentType).Observe(durationSeconds)
}

// RecordClaimRejected records a claim rejected before matching
func RecordClaimRejected(documentType string) {
	ClaimsRejectedTotal.WithLabelValues(documentType).Inc()
}

// RecordFuzzyCandidates records the size of a scored candidate page
func RecordFuzzyCandidates(documentType string, count int) {
	FuzzyCandidatesScored.WithLabelValues(documentType).Observe(float64(count))
}

// RecordUpsert records an authoritative record write outcome
func RecordUpsert(documentType, outcome string) {
	RecordUpsertsTotal.WithLabelValues(documentType, outcome).Inc()
}

// RecordCacheLookup records a record cache lookup result
func RecordCacheLookup(result string) {
	RecordCacheEvents.WithLabelValues(result).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordKafkaConsume records a consumed Kafka message result
func RecordKafkaConsume(topic, result string) {
	KafkaMessagesConsumed.WithLabelValues(topic, result).Inc()
}
