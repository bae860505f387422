package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tenantflow/channel-connector/internal/config"
	"github.com/tenantflow/channel-connector/internal/controller/api"
	"github.com/tenantflow/channel-connector/internal/instances"
	"github.com/tenantflow/channel-connector/internal/platform/db"
	"github.com/tenantflow/channel-connector/internal/platform/logger"
	"github.com/tenantflow/channel-connector/internal/platform/queue"
	"github.com/tenantflow/channel-connector/internal/platform/utils"
	"github.com/tenantflow/channel-connector/internal/provider"
	"github.com/tenantflow/channel-connector/internal/realtime"
	"github.com/redhatinsights/platform-go-middlewares/request_id"

	"github.com/gorilla/mux"
	kafka "github.com/segmentio/kafka-go"
)

func startChannelConnectorApiServer(apiAddr string, mgmtAddr string) {

	logger.Log.Info("Starting Channel-Connector service")

	cfg := config.GetConfig()
	logger.Log.Info("Channel-Connector configuration:\n", cfg)

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		logger.LogFatalError("Unable to connect to database: ", err)
	}

	eventFeedWriter := buildEventFeedWriter(cfg)

	registry := realtime.NewLocalConnectionRegistry()
	broadcaster := realtime.NewBroadcaster(registry, registry, eventFeedWriter)
	dispatcher := realtime.NewCommandDispatcher(broadcaster)

	connector := provider.NewHTTPConnector(cfg.ProviderConnectTimeout, cfg.ProviderSendTimeout)

	var instanceStore instances.InstanceStore = instances.NewSqlInstanceStore(database)
	instanceStore = instances.NewCachedInstanceStore(instanceStore, cfg.InstanceCacheSize, cfg.InstanceCacheTTL)

	lifecycle := instances.NewLifecycle(instanceStore, connector, broadcaster)
	webhookProcessor := instances.NewWebhookProcessor(instanceStore, lifecycle, broadcaster)

	apiMux := mux.NewRouter()
	apiMux.Use(request_id.ConfiguredRequestID("x-request-id"))

	apiSubRouter := apiMux.PathPrefix(cfg.UrlBasePath).Subrouter()

	instanceServer := api.NewInstanceManagementServer(instanceStore, lifecycle, apiSubRouter, cfg)
	instanceServer.Routes()

	webhookReceiver := api.NewWebhookReceiver(webhookProcessor, apiSubRouter, cfg)
	webhookReceiver.Routes()

	socketReceiver := api.NewSocketReceiver(registry, dispatcher, apiMux, cfg)
	socketReceiver.Routes()

	apiSrv := utils.StartHTTPServer(apiAddr, "api", apiMux)

	mgmtMux := mux.NewRouter()

	monitoringServer := api.NewMonitoringServer(mgmtMux, cfg, database)
	monitoringServer.Routes()

	mgmtSrv := utils.StartHTTPServer(mgmtAddr, "management", mgmtMux)

	signalChan := make(chan os.Signal, 1)

	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan

	logger.Log.Info("Received signal to shutdown: ", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HttpShutdownTimeout)
	defer cancel()

	utils.ShutdownHTTPServer(ctx, "api", apiSrv)
	utils.ShutdownHTTPServer(ctx, "management", mgmtSrv)

	if eventFeedWriter != nil {
		eventFeedWriter.Close()
	}

	logger.Log.Info("Channel-Connector shutting down")
}

func buildEventFeedWriter(cfg *config.Config) *kafka.Writer {

	if len(cfg.EventFeedBrokers) == 0 {
		logger.Log.Info("Event feed mirroring is disabled")
		return nil
	}

	var saslConfig *queue.SaslConfig
	if cfg.KafkaSASLMechanism != "" {
		saslConfig = &queue.SaslConfig{
			SaslMechanism: cfg.KafkaSASLMechanism,
			SaslUsername:  cfg.KafkaUsername,
			SaslPassword:  cfg.KafkaPassword,
			KafkaCA:       cfg.KafkaCA,
		}
	}

	return queue.StartProducer(&queue.ProducerConfig{
		Brokers:    cfg.EventFeedBrokers,
		SaslConfig: saslConfig,
		Topic:      cfg.EventFeedTopic,
		BatchSize:  cfg.EventFeedBatchSize,
		BatchBytes: cfg.EventFeedBatchBytes,
		Balancer:   cfg.EventFeedBalancer,
	})
}
