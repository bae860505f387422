package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "channel_connector_provider_connect_call_duration",
		Help: "The amount of time it took for the provider to answer a connect call",
	})

	sendCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "channel_connector_provider_send_call_duration",
		Help: "The amount of time it took for the provider to answer a send call",
	})
)
