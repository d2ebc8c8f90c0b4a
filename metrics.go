package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Invocations      prometheus.Counter
	Records          *prometheus.CounterVec
	TransformedBytes prometheus.Counter
	Reingested       prometheus.Counter
	DeliveryAttempts *prometheus.CounterVec
	RetriedRecords   prometheus.Counter
	DeliveryFailures prometheus.Counter
}

// NewMetrics registers the processor collectors on reg. Each process owns one registry
// so tests can build isolated instances.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Invocations: f.NewCounter(prometheus.CounterOpts{
			Name: "firehose_processor_invocations_total",
			Help: "Total number of transformation invocations handled",
		}),
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "firehose_processor_records_total",
			Help: "Total number of records transformed, by result",
		}, []string{"result"}),
		TransformedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "firehose_processor_transformed_bytes_total",
			Help: "Total bytes of transformed output returned inline",
		}),
		Reingested: f.NewCounter(prometheus.CounterOpts{
			Name: "firehose_processor_reingested_records_total",
			Help: "Total number of records diverted back into the source stream",
		}),
		DeliveryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "firehose_processor_delivery_attempts_total",
			Help: "Total number of batch submissions to the re-ingestion sink",
		}, []string{"sink"}),
		RetriedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "firehose_processor_retried_records_total",
			Help: "Total number of records resubmitted after a partial failure",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "firehose_processor_delivery_failures_total",
			Help: "Total number of batches abandoned after exhausting delivery attempts",
		}),
	}
}
