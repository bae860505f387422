package realtime

import (
	"context"
	"encoding/json"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

// Inbound frame types accepted from realtime clients.
const (
	CommandTypeChatMessage = "chat_message"
)

type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// CommandDispatcher routes decoded inbound client frames to the broadcaster.
type CommandDispatcher struct {
	broadcaster *Broadcaster
}

func NewCommandDispatcher(broadcaster *Broadcaster) *CommandDispatcher {
	return &CommandDispatcher{broadcaster: broadcaster}
}

// Dispatch handles one inbound frame from the given connection.  Recognized
// commands fan out to the tenant; anything else is acknowledged back to the
// sender only.
func (d *CommandDispatcher) Dispatch(ctx context.Context, tenant domain.TenantID, sender domain.UserID, payload []byte) {

	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"error":  err,
			"tenant": tenant,
			"user":   sender}).Debug("Ignoring malformed inbound frame")
		d.ack(ctx, tenant, sender, "")
		return
	}

	switch frame.Type {
	case CommandTypeChatMessage:
		// The sender sees their own message too - the frontend renders
		// the chat from the broadcast stream.
		d.broadcaster.BroadcastToTenant(ctx, tenant, NewChatMessageEvent(sender, frame.Content), "")
	default:
		d.ack(ctx, tenant, sender, frame.Type)
	}
}

func (d *CommandDispatcher) ack(ctx context.Context, tenant domain.TenantID, user domain.UserID, receivedType string) {
	if err := d.broadcaster.SendPersonal(ctx, tenant, user, NewAckEvent(receivedType)); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"error":  err,
			"tenant": tenant,
			"user":   user}).Debug("Unable to acknowledge inbound frame")
	}
}
