package instances

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/platform/logger"
	"github.com/tenantflow/channel-connector/internal/realtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Provider event kinds we act on.  Anything else is acknowledged and
// dropped.
const (
	webhookEventConnectionUpdate = "connection.update"
	webhookEventQRCodeUpdated    = "qrcode.updated"
	webhookEventMessagesUpsert   = "messages.upsert"
)

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type connectionUpdateData struct {
	State string `json:"state"`
}

type qrCodeUpdatedData struct {
	QRCode struct {
		Base64 string `json:"base64"`
	} `json:"qrcode"`
	Base64 string `json:"base64"`
}

type upsertMessage struct {
	Key struct {
		RemoteJid string `json:"remoteJid"`
	} `json:"key"`
	Message struct {
		Conversation string `json:"conversation"`
	} `json:"message"`
}

// The provider ships the upsert batch as a bare array under data; some
// versions wrap it in a messages object instead.  Both are accepted.
func decodeUpsertBatch(data json.RawMessage) ([]upsertMessage, error) {
	var messages []upsertMessage
	if err := json.Unmarshal(data, &messages); err == nil {
		return messages, nil
	}

	var wrapped struct {
		Messages []upsertMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}

	return wrapped.Messages, nil
}

// WebhookProcessor turns raw provider deliveries into instance state
// transitions and fan-out events.  It never returns an error: the caller
// acknowledges every delivery so the provider does not retry forever, and
// all processing failures end here as log lines.
type WebhookProcessor struct {
	store       InstanceStore
	lifecycle   *Lifecycle
	broadcaster EventBroadcaster
}

func NewWebhookProcessor(store InstanceStore, lifecycle *Lifecycle, broadcaster EventBroadcaster) *WebhookProcessor {
	return &WebhookProcessor{
		store:       store,
		lifecycle:   lifecycle,
		broadcaster: broadcaster,
	}
}

func (p *WebhookProcessor) Process(ctx context.Context, instanceName string, rawPayload []byte) {

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawPayload, &envelope); err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "instance": instanceName}).Error("Discarding unparseable webhook payload")
		return
	}

	requestLogger := logger.Log.WithFields(logrus.Fields{"instance": instanceName, "event": envelope.Event})

	instance, err := p.store.GetInstanceByName(ctx, instanceName)
	if err == ErrInstanceNotFound {
		webhookUnknownInstanceCounter.Inc()
		requestLogger.Info("Ignoring webhook for unknown instance")
		return
	}
	if err != nil {
		requestLogger.WithFields(logrus.Fields{"error": err}).Error("Unable to look up webhook instance")
		return
	}

	if err := p.store.UpdateInstanceWebhookTimestamp(ctx, instance.ID, time.Now().UTC()); err != nil {
		requestLogger.WithFields(logrus.Fields{"error": err}).Error("Unable to record webhook timestamp")
	}

	webhookEventCounter.With(prometheus.Labels{"event": envelope.Event}).Inc()

	switch envelope.Event {
	case webhookEventConnectionUpdate:
		p.processConnectionUpdate(ctx, requestLogger, instance.ID, envelope.Data)
	case webhookEventQRCodeUpdated:
		p.processQRCodeUpdated(ctx, requestLogger, instance.ID, envelope.Data)
	case webhookEventMessagesUpsert:
		p.processMessagesUpsert(ctx, requestLogger, instance, envelope.Data)
	default:
		requestLogger.Debug("Ignoring unrecognized webhook event kind")
	}
}

func (p *WebhookProcessor) processConnectionUpdate(ctx context.Context, requestLogger *logrus.Entry, id domain.InstanceID, data json.RawMessage) {

	var update connectionUpdateData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &update); err != nil {
			requestLogger.WithFields(logrus.Fields{"error": err}).Error("Discarding malformed connection update")
			return
		}
	}

	if err := p.lifecycle.ApplyConnectionUpdate(ctx, id, update.State); err != nil {
		requestLogger.WithFields(logrus.Fields{"error": err}).Error("Unable to apply connection update")
	}
}

func (p *WebhookProcessor) processQRCodeUpdated(ctx context.Context, requestLogger *logrus.Entry, id domain.InstanceID, data json.RawMessage) {

	var update qrCodeUpdatedData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &update); err != nil {
			requestLogger.WithFields(logrus.Fields{"error": err}).Error("Discarding malformed qr code update")
			return
		}
	}

	// The provider has shipped the payload both nested and flat
	qrBase64 := update.QRCode.Base64
	if qrBase64 == "" {
		qrBase64 = update.Base64
	}

	if err := p.lifecycle.ApplyQRUpdate(ctx, id, qrBase64); err != nil {
		requestLogger.WithFields(logrus.Fields{"error": err}).Error("Unable to apply qr code update")
	}
}

func (p *WebhookProcessor) processMessagesUpsert(ctx context.Context, requestLogger *logrus.Entry, instance *domain.Instance, data json.RawMessage) {

	messages, err := decodeUpsertBatch(data)
	if err != nil {
		requestLogger.WithFields(logrus.Fields{"error": err}).Error("Discarding malformed message batch")
		return
	}

	for _, message := range messages {
		sender := message.Key.RemoteJid
		content := message.Message.Conversation

		if sender == "" || content == "" {
			malformedMessageCounter.Inc()
			requestLogger.Debug("Skipping inbound message with missing sender or content")
			continue
		}

		event := realtime.NewInboundMessageEvent(instance.ID, sender, content)
		p.broadcaster.BroadcastToTenant(ctx, instance.TenantID, event, "")
	}
}
