package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncPassesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fax_sync",
			Name:      "passes_total",
			Help:      "Total sync passes run.",
		},
		[]string{"mode", "status"}, // status: "ok", "error"
	)

	syncPassDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fax_sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a full sync pass.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	inboundRecordsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fax_sync",
			Name:      "inbound_records_total",
			Help:      "Inbound fax records handled, by outcome.",
		},
		[]string{"provider", "outcome"}, // outcome: "created", "existing", "failed"
	)

	combinationsSkippedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fax_sync",
			Name:      "combinations_skipped_total",
			Help:      "Partner provider configs skipped during a pass.",
		},
		[]string{"provider", "reason"},
	)

	providerRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fax_sync",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of calls to fax providers.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	outboundSendsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fax_sync",
			Name:      "outbound_sends_total",
			Help:      "Outbound fax sends, by provider and result.",
		},
		[]string{"provider", "status"},
	)

	notificationsPublishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fax_sync",
			Name:      "notifications_published_total",
			Help:      "Bus notifications published.",
		},
		[]string{"subject", "status"},
	)

	retriedFaxesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fax_sync",
			Name:      "retried_faxes_total",
			Help:      "Failed faxes re-published for processing.",
		},
		[]string{"trigger", "status"}, // trigger: "sweep", "manual"
	)
)
