package instances

import (
	"context"
	"errors"
	"time"

	"github.com/tenantflow/channel-connector/internal/domain"
)

var (
	// ErrInstanceNotFound is returned when no instance row matches the
	// given id or name.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrDuplicateInstanceName is returned when a create or rename
	// collides with another tenant's (or the same tenant's) instance name.
	ErrDuplicateInstanceName = errors.New("instance with this name already exists")

	// ErrInstanceNotConfigured is returned by the connect action when the
	// instance is missing its provider endpoint or credential.
	ErrInstanceNotConfigured = errors.New("api endpoint or api key not configured for this instance")

	// ErrInstanceNotReady is returned by the send action when the instance
	// is not in the connected state.
	ErrInstanceNotReady = errors.New("instance not configured or not connected")
)

// InstanceStore is the storage collaborator for messaging instance rows.
// Each update method is a single atomic row update.
type InstanceStore interface {
	GetInstance(ctx context.Context, id domain.InstanceID) (*domain.Instance, error)
	GetInstanceByName(ctx context.Context, name string) (*domain.Instance, error)
	GetInstancesByTenant(ctx context.Context, tenant domain.TenantID, offset int, limit int) ([]domain.Instance, int, error)
	GetAllInstances(ctx context.Context, offset int, limit int) ([]domain.Instance, int, error)
	CreateInstance(ctx context.Context, instance *domain.Instance) error
	UpdateInstance(ctx context.Context, instance *domain.Instance) error
	DeleteInstance(ctx context.Context, id domain.InstanceID) error
	UpdateInstanceStatus(ctx context.Context, id domain.InstanceID, status string) error
	UpdateInstanceQR(ctx context.Context, id domain.InstanceID, qrCode string) error
	UpdateInstanceState(ctx context.Context, id domain.InstanceID, status string, qrCode string) error
	UpdateInstanceWebhookTimestamp(ctx context.Context, id domain.InstanceID, receivedAt time.Time) error
}

// EventBroadcaster is the slice of the fan-out broadcaster the instance
// lifecycle needs.
type EventBroadcaster interface {
	BroadcastToTenant(ctx context.Context, tenant domain.TenantID, event interface{}, excludeUser domain.UserID)
}
