package instances

import (
	"context"
	"testing"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/realtime"
)

func buildWebhookProcessor(seed ...*domain.Instance) (*WebhookProcessor, *MockInstanceStore, *MockBroadcaster) {
	store := NewMockInstanceStore(seed...)
	broadcaster := &MockBroadcaster{}
	lifecycle := NewLifecycle(store, &MockConnector{}, broadcaster)
	return NewWebhookProcessor(store, lifecycle, broadcaster), store, broadcaster
}

func TestWebhookForUnknownInstanceDoesNotMutateState(t *testing.T) {
	processor, store, broadcaster := buildWebhookProcessor(configuredInstance())

	processor.Process(context.TODO(), "not gonna find me", []byte(`{"event":"connection.update","data":{"state":"open"}}`))

	stored, _ := store.GetInstance(context.TODO(), "instance-1")
	if stored.Status != domain.StatusDisconnected {
		t.Fatalf("Expected the known instance to be untouched, but got %s", stored.Status)
	}
	if stored.LastWebhookReceived != nil {
		t.Fatalf("Expected no webhook timestamp for an unknown instance delivery")
	}
	if len(broadcaster.Events()) != 0 {
		t.Fatalf("Expected no events for an unknown instance delivery")
	}
}

func TestWebhookRecordsTheDeliveryTimestamp(t *testing.T) {
	processor, store, _ := buildWebhookProcessor(configuredInstance())

	processor.Process(context.TODO(), "support-channel", []byte(`{"event":"some.unknown.kind","data":{}}`))

	stored, _ := store.GetInstance(context.TODO(), "instance-1")
	if stored.LastWebhookReceived == nil {
		t.Fatalf("Expected the delivery timestamp to be recorded even for unrecognized event kinds")
	}
}

func TestWebhookConnectionUpdateTransitionsTheInstance(t *testing.T) {
	pending := configuredInstance()
	pending.Status = domain.StatusQRCodeNeeded
	pending.QRCode = "qr-data"
	processor, store, broadcaster := buildWebhookProcessor(pending)

	processor.Process(context.TODO(), "support-channel", []byte(`{"event":"connection.update","data":{"state":"open"}}`))

	stored, _ := store.GetInstance(context.TODO(), "instance-1")
	if stored.Status != "open" {
		t.Fatalf("Expected status open, but got %s", stored.Status)
	}
	if stored.QRCode != "" {
		t.Fatalf("Expected the QR to be cleared, but got %q", stored.QRCode)
	}

	events := broadcaster.Events()
	if len(events) != 1 {
		t.Fatalf("Expected 1 status event, but got %d", len(events))
	}
	statusEvent := events[0].(realtime.InstanceStatusEvent)
	if statusEvent.Status != "open" {
		t.Fatalf("Expected the event status to be open, but got %s", statusEvent.Status)
	}
}

func TestWebhookQRCodeUpdatedStoresTheNewPayload(t *testing.T) {
	processor, store, broadcaster := buildWebhookProcessor(configuredInstance())

	processor.Process(context.TODO(), "support-channel", []byte(`{"event":"qrcode.updated","data":{"qrcode":{"base64":"fresh-qr"}}}`))

	stored, _ := store.GetInstance(context.TODO(), "instance-1")
	if stored.Status != domain.StatusQRCodeNeeded || stored.QRCode != "fresh-qr" {
		t.Fatalf("Expected %s / fresh-qr, but got %s / %q", domain.StatusQRCodeNeeded, stored.Status, stored.QRCode)
	}

	if len(broadcaster.Events()) != 1 {
		t.Fatalf("Expected 1 status event, but got %d", len(broadcaster.Events()))
	}
}

func TestWebhookQRCodeUpdatedWithFlatPayload(t *testing.T) {
	processor, store, _ := buildWebhookProcessor(configuredInstance())

	processor.Process(context.TODO(), "support-channel", []byte(`{"event":"qrcode.updated","data":{"base64":"flat-qr"}}`))

	stored, _ := store.GetInstance(context.TODO(), "instance-1")
	if stored.QRCode != "flat-qr" {
		t.Fatalf("Expected the flat QR payload to be stored, but got %q", stored.QRCode)
	}
}

func TestWebhookMessageBatchSkipsMalformedEntries(t *testing.T) {
	processor, _, broadcaster := buildWebhookProcessor(configuredInstance())

	payload := `{"event":"messages.upsert","data":[
		{"key":{"remoteJid":"5551@s.net"},"message":{"conversation":"first"}},
		{"key":{},"message":{}},
		{"key":{"remoteJid":"5553@s.net"},"message":{"conversation":"third"}}
	]}`

	processor.Process(context.TODO(), "support-channel", []byte(payload))

	events := broadcaster.Events()
	if len(events) != 2 {
		t.Fatalf("Expected 2 message events, but got %d", len(events))
	}

	first := events[0].(realtime.NewMessageEvent)
	if first.Sender != "5551@s.net" || first.Content != "first" {
		t.Fatalf("Expected the first message first, but got %s / %s", first.Sender, first.Content)
	}

	third := events[1].(realtime.NewMessageEvent)
	if third.Sender != "5553@s.net" || third.Content != "third" {
		t.Fatalf("Expected the third message second, but got %s / %s", third.Sender, third.Content)
	}
}

func TestWebhookMessageBatchWithWrappedPayload(t *testing.T) {
	processor, _, broadcaster := buildWebhookProcessor(configuredInstance())

	payload := `{"event":"messages.upsert","data":{"messages":[
		{"key":{"remoteJid":"5551@s.net"},"message":{"conversation":"first"}},
		{"key":{"remoteJid":"5552@s.net"},"message":{"conversation":"second"}}
	]}}`

	processor.Process(context.TODO(), "support-channel", []byte(payload))

	events := broadcaster.Events()
	if len(events) != 2 {
		t.Fatalf("Expected 2 message events for a wrapped batch, but got %d", len(events))
	}
}

func TestWebhookMessageBatchCarriesTheInstanceId(t *testing.T) {
	processor, _, broadcaster := buildWebhookProcessor(configuredInstance())

	processor.Process(context.TODO(), "support-channel", []byte(`{"event":"messages.upsert","data":[{"key":{"remoteJid":"5551@s.net"},"message":{"conversation":"hello"}}]}`))

	events := broadcaster.Events()
	if len(events) != 1 {
		t.Fatalf("Expected 1 message event, but got %d", len(events))
	}

	messageEvent := events[0].(realtime.NewMessageEvent)
	if messageEvent.InstanceID != "instance-1" {
		t.Fatalf("Expected the event to carry the instance id, but got %s", messageEvent.InstanceID)
	}
	if messageEvent.Type != realtime.EventTypeNewMessage {
		t.Fatalf("Expected a %s frame, but got %s", realtime.EventTypeNewMessage, messageEvent.Type)
	}
}

func TestWebhookWithUnparseablePayload(t *testing.T) {
	processor, store, broadcaster := buildWebhookProcessor(configuredInstance())

	processor.Process(context.TODO(), "support-channel", []byte(`this is not json`))

	stored, _ := store.GetInstance(context.TODO(), "instance-1")
	if stored.LastWebhookReceived != nil {
		t.Fatalf("Expected no mutation for an unparseable payload")
	}
	if len(broadcaster.Events()) != 0 {
		t.Fatalf("Expected no events for an unparseable payload")
	}
}
