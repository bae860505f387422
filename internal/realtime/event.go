package realtime

import "github.com/tenantflow/channel-connector/internal/domain"

// Outbound frame types delivered to realtime clients.
const (
	EventTypeInstanceStatus = "instance_status"
	EventTypeNewMessage     = "new_message"
	EventTypeChatMessage    = "chat_message"
	EventTypeAck            = "ack"
)

// InstanceStatusEvent reports a messaging instance status change, including
// the QR payload while pairing is pending.
type InstanceStatusEvent struct {
	Type       string `json:"type"`
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
	QRCode     string `json:"qr_code,omitempty"`
}

func NewInstanceStatusEvent(instanceID domain.InstanceID, status string, qrCode string) InstanceStatusEvent {
	return InstanceStatusEvent{
		Type:       EventTypeInstanceStatus,
		InstanceID: instanceID.String(),
		Status:     status,
		QRCode:     qrCode,
	}
}

// NewMessageEvent relays an inbound provider message to the tenant's agents.
type NewMessageEvent struct {
	Type       string `json:"type"`
	InstanceID string `json:"instance_id"`
	Sender     string `json:"sender"`
	Content    string `json:"content"`
}

func NewInboundMessageEvent(instanceID domain.InstanceID, sender string, content string) NewMessageEvent {
	return NewMessageEvent{
		Type:       EventTypeNewMessage,
		InstanceID: instanceID.String(),
		Sender:     sender,
		Content:    content,
	}
}

// ChatMessageEvent relays an internal chat message between the tenant's
// connected users.
type ChatMessageEvent struct {
	Type     string `json:"type"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

func NewChatMessageEvent(sender domain.UserID, content string) ChatMessageEvent {
	return ChatMessageEvent{
		Type:     EventTypeChatMessage,
		SenderID: sender.String(),
		Content:  content,
	}
}

// AckEvent is the direct response sent back to a client whose inbound frame
// was not recognized.
type AckEvent struct {
	Type     string `json:"type"`
	Received string `json:"received"`
}

func NewAckEvent(receivedType string) AckEvent {
	return AckEvent{
		Type:     EventTypeAck,
		Received: receivedType,
	}
}
