package instances

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sqlLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "channel_connector_sql_instance_lookup_duration",
		Help: "The amount of time it took to look up instance rows in the db",
	})

	sqlUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "channel_connector_sql_instance_update_duration",
		Help: "The amount of time it took to update instance rows in the db",
	})

	webhookEventCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_connector_webhook_event_counter",
		Help: "The number of webhook events processed per event kind",
	}, []string{"event"})

	webhookUnknownInstanceCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_connector_webhook_unknown_instance_counter",
		Help: "The number of webhook deliveries for instance names we do not know about",
	})

	malformedMessageCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_connector_webhook_malformed_message_counter",
		Help: "The number of inbound messages skipped due to a missing sender or content",
	})

	instanceCacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_connector_instance_cache_hit_counter",
		Help: "The number of instance name lookups answered from the cache",
	})
)
