package domain

import "time"

type TenantID string

func (tid TenantID) String() string {
	return string(tid)
}

type UserID string

func (uid UserID) String() string {
	return string(uid)
}

type InstanceID string

func (iid InstanceID) String() string {
	return string(iid)
}

// Connection statuses tracked for a messaging gateway instance.  The
// provider is free to report additional states ("open", "close", ...) via
// connection.update webhooks - those are stored verbatim.
const (
	StatusDisconnected    = "disconnected"
	StatusConnecting      = "connecting"
	StatusQRCodeNeeded    = "qr_code_needed"
	StatusConnected       = "connected"
	StatusConnectionError = "connection_error"
	StatusError           = "error"
)

// Instance is one configured external messaging channel owned by a tenant.
// The instance name is unique across all tenants since the provider uses it
// to route webhooks back to us.
type Instance struct {
	ID                  InstanceID
	TenantID            TenantID
	Name                string
	ApiEndpoint         string
	ApiKey              string
	Status              string
	QRCode              string
	LastWebhookReceived *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Active              bool
}

// Configured reports whether the instance has enough provider coordinates
// for an outbound call.
func (i *Instance) Configured() bool {
	return i.ApiEndpoint != "" && i.ApiKey != ""
}
