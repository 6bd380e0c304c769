package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder aggregates billing instrumentation so callers never touch raw
// prometheus collectors.
type Recorder struct {
	billingOperations *prometheus.CounterVec
	billingErrors     *prometheus.CounterVec
	billingDuration   *prometheus.HistogramVec
	paymentCallbacks  *prometheus.CounterVec
}

var GlobalRecorder = newRecorder()

func newRecorder() *Recorder {
	return &Recorder{
		billingOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_billing_operations_total",
			Help: "Billing operations by type and outcome",
		}, []string{"operation", "outcome"}),
		billingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_billing_errors_total",
			Help: "Billing errors by type and operation",
		}, []string{"error_type", "operation"}),
		billingDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credit_billing_duration_seconds",
			Help:    "Billing operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		paymentCallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_payment_callbacks_total",
			Help: "Payment gateway callbacks by result",
		}, []string{"result"}),
	}
}

// RecordBillingOperation records one completed billing operation.
func (r *Recorder) RecordBillingOperation(start time.Time, operation string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.billingOperations.WithLabelValues(operation, outcome).Inc()
	r.billingDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordBillingError records a billing failure by category.
func (r *Recorder) RecordBillingError(errType string, operation string) {
	r.billingErrors.WithLabelValues(errType, operation).Inc()
}

// RecordPaymentCallback records the disposition of a gateway callback.
func (r *Recorder) RecordPaymentCallback(result string) {
	r.paymentCallbacks.WithLabelValues(result).Inc()
}
