package api

import (
	"io"
	"net/http"

	"github.com/tenantflow/channel-connector/internal/config"
	"github.com/tenantflow/channel-connector/internal/instances"
	"github.com/tenantflow/channel-connector/internal/middlewares"
	"github.com/tenantflow/channel-connector/internal/platform/logger"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxWebhookBodyBytes = 1048576

// WebhookReceiver accepts provider deliveries keyed by instance name.  The
// provider retries failed deliveries forever, so the receiver acknowledges
// everything with a 200 and leaves failure handling to the processor.
type WebhookReceiver struct {
	processor *instances.WebhookProcessor
	router    *mux.Router
	config    *config.Config
}

func NewWebhookReceiver(processor *instances.WebhookProcessor, r *mux.Router, cfg *config.Config) *WebhookReceiver {
	return &WebhookReceiver{
		processor: processor,
		router:    r,
		config:    cfg,
	}
}

func (wr *WebhookReceiver) Routes() {
	mmw := &middlewares.MetricsMiddleware{}

	subRouter := wr.router.PathPrefix("/webhook").Subrouter()
	subRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics)

	subRouter.HandleFunc("/{instanceName}", wr.handleWebhook()).Methods(http.MethodPost)
}

type webhookAck struct {
	Status string `json:"status"`
}

func (wr *WebhookReceiver) handleWebhook() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		instanceName := mux.Vars(req)["instanceName"]

		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxWebhookBodyBytes))
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err, "instance": instanceName}).Error("Unable to read webhook body")
			writeJSONResponse(w, http.StatusOK, webhookAck{Status: "ignored"})
			return
		}

		wr.processor.Process(req.Context(), instanceName, body)

		writeJSONResponse(w, http.StatusOK, webhookAck{Status: "received"})
	}
}
