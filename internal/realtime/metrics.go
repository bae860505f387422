package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channel_connector_active_realtime_connections",
		Help: "The current number of registered realtime connections",
	})

	fanoutDeliveryCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_connector_fanout_delivery_count",
		Help: "The number of events enqueued for delivery to realtime connections",
	})

	fanoutFailureCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_connector_fanout_failure_count",
		Help: "The number of deliveries dropped due to unresponsive or closed connections",
	})
)
