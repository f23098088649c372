package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Kafka
	kafkaMessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_messages_sent_total",
			Help: "Total number of Kafka messages successfully sent.",
		},
	)
	kafkaMessagesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_messages_processed_total",
			Help: "Total number of Kafka messages successfully processed.",
		},
	)
	kafkaErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_errors_total",
			Help: "Total number of Kafka-related errors.",
		},
		[]string{"component", "operation"},
	)

	// Business
	paymentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Total number of payments accepted, by payment type.",
		},
		[]string{"type"},
	)
	paymentsSucceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_succeeded_total",
			Help: "Total number of payments settled successfully.",
		},
	)
	paymentsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_failed_total",
			Help: "Total number of payments that exhausted retries or were rejected.",
		},
	)
	paymentsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_cancelled_total",
			Help: "Total number of payments cancelled before processing.",
		},
	)
	paymentRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_retries_total",
			Help: "Total number of retry attempts scheduled after a failed bank call.",
		},
	)
	paymentsReconciled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_reconciled_total",
			Help: "Total number of stuck payments resolved by reconciliation.",
		},
	)
	reconInconsistencies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_inconsistencies_total",
			Help: "Total number of inconsistencies detected by success verification.",
		},
	)
	bankCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bank_call_duration_seconds",
			Help:    "Duration of a single bank processing call (seconds).",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10},
		},
	)
	paymentAmount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_amount",
			Help:    "Distribution of payment amounts, by payment type.",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000},
		},
		[]string{"type"},
	)
	paymentStatusCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payment_status_count",
			Help: "Current count of payments by status.",
		},
		[]string{"status"},
	)
	retryQueuePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "retry_queue_pending_count",
			Help: "Current number of retry queue entries below the retry limit.",
		},
	)

	// Outbox
	outboxMessagesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbox_messages_count",
			Help: "Current count of outbox messages by status.",
		},
		[]string{"status"},
	)
	outboxMessagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_messages_sent_total",
			Help: "Total number of outbox messages marked as sent.",
		},
	)
	outboxMessagesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_messages_failed_total",
			Help: "Total number of outbox messages marked as failed.",
		},
	)
	outboxProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_processing_duration_seconds",
			Help:    "Time spent sending a single outbox message (seconds).",
			Buckets: prometheus.DefBuckets,
		},
	)
	outboxRetryCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_retries_total",
			Help: "Total number of outbox send retries (failed attempts).",
		},
	)
	outboxLagSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_lag_seconds",
			Help:    "Lag between outbox message creation and send attempt (seconds).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// Redis
	redisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_requests_total",
			Help: "Total number of Redis requests",
		},
		[]string{"operation"}, // get, set, delete
	)
	redisCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)
	redisCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)
	redisErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of Redis errors",
		},
		[]string{"operation"},
	)
	redisRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_request_duration_seconds",
			Help:    "Redis request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	redisCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_cache_size_bytes",
			Help: "Approximate size of Redis cache (if available)",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			kafkaMessagesSent,
			kafkaMessagesProcessed,
			kafkaErrors,

			paymentsCreated,
			paymentsSucceeded,
			paymentsFailed,
			paymentsCancelled,
			paymentRetries,
			paymentsReconciled,
			reconInconsistencies,
			bankCallDuration,
			paymentAmount,
			paymentStatusCount,
			retryQueuePending,

			outboxMessagesTotal,
			outboxMessagesSentTotal,
			outboxMessagesFailedTotal,
			outboxProcessingDuration,
			outboxRetryCount,
			outboxLagSeconds,

			redisRequestsTotal,
			redisCacheHitsTotal,
			redisCacheMissesTotal,
			redisErrorsTotal,
			redisRequestDuration,
			redisCacheSize,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// --- Kafka ---
func IncKafkaSent()      { kafkaMessagesSent.Inc() }
func IncKafkaProcessed() { kafkaMessagesProcessed.Inc() }
func IncKafkaError(component, operation string) {
	kafkaErrors.WithLabelValues(component, operation).Inc()
}

// --- Business ---
func IncPaymentsCreated(paymentType string) { paymentsCreated.WithLabelValues(paymentType).Inc() }
func IncPaymentsSucceeded()                 { paymentsSucceeded.Inc() }
func IncPaymentsFailed()                    { paymentsFailed.Inc() }
func IncPaymentsCancelled()                 { paymentsCancelled.Inc() }
func IncPaymentRetries()                    { paymentRetries.Inc() }
func IncPaymentsReconciled()                { paymentsReconciled.Inc() }
func IncReconInconsistencies()              { reconInconsistencies.Inc() }

func ObserveBankCall(d time.Duration) { bankCallDuration.Observe(d.Seconds()) }
func ObservePaymentAmount(paymentType string, amount float64) {
	if amount < 0 {
		amount = 0
	}
	paymentAmount.WithLabelValues(paymentType).Observe(amount)
}

// --- Outbox ---
func IncOutboxSent()                          { outboxMessagesSentTotal.Inc() }
func IncOutboxFailed()                        { outboxMessagesFailedTotal.Inc() }
func ObserveOutboxProcessing(d time.Duration) { outboxProcessingDuration.Observe(d.Seconds()) }
func IncOutboxRetry()                         { outboxRetryCount.Inc() }
func ObserveOutboxLagSeconds(sec float64) {
	if sec < 0 {
		sec = 0
	}
	outboxLagSeconds.Observe(sec)
}

// --- Redis ---
func IncRedisRequest(op string) { redisRequestsTotal.WithLabelValues(op).Inc() }
func IncRedisError(op string)   { redisErrorsTotal.WithLabelValues(op).Inc() }
func ObserveRedisDuration(op string, d time.Duration) {
	redisRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}
func IncRedisHit()  { redisCacheHitsTotal.Inc() }
func IncRedisMiss() { redisCacheMissesTotal.Inc() }
func SetRedisCacheSizeBytes(n int64) {
	if n < 0 {
		n = 0
	}
	redisCacheSize.Set(float64(n))
}

// --- Gauges (DB collectors) ---
func SetPaymentStatusCount(status string, count int64) {
	if count < 0 {
		count = 0
	}
	paymentStatusCount.WithLabelValues(status).Set(float64(count))
}
func SetRetryQueuePending(count int64) {
	if count < 0 {
		count = 0
	}
	retryQueuePending.Set(float64(count))
}
func SetOutboxStatusCount(status string, count int64) {
	if count < 0 {
		count = 0
	}
	outboxMessagesTotal.WithLabelValues(status).Set(float64(count))
}

// helpers
func fmtInt(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [32]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
